// Package config reads application settings from env/.env through wbf config
package config

import (
	"log"
	"strconv"
	"strings"
	"time"

	wbfconfig "github.com/wb-go/wbf/config"
)

// StringGetter is the part of wbf config used here.
type StringGetter interface {
	GetString(key string) string
}

type MinioConfig struct {
	Endpoint string
	User     string
	Pass     string
	Bucket   string
	UseSSL   bool
}

type KafkaConfig struct {
	Broker string
	Topic  string
}

type AppConfig struct {
	Port            string
	GinMode         string
	LogLevel        string
	RemoteBaseURL   string
	RemoteTimeout   time.Duration
	ObjectBackend   string
	ObjectURLPrefix string
	PreviewMaxSide  int
	SessionIdleTTL  time.Duration
	Minio           MinioConfig
	Kafka           KafkaConfig
}

// Load - инициализировать конфиг/ считать энвы
func Load(envFiles ...string) *AppConfig {
	appConfig := wbfconfig.New()
	appConfig.EnableEnv("")
	for _, f := range envFiles {
		if err := appConfig.LoadEnvFiles(f); err != nil {
			log.Printf("Failed to load env file %q: %v. Using process env only...", f, err)
		}
	}
	return FromGetter(appConfig)
}

// FromGetter applies defaults on top of whatever the getter knows.
func FromGetter(g StringGetter) *AppConfig {
	return &AppConfig{
		Port:            stringOr(g, "APP_PORT", "8080"),
		GinMode:         stringOr(g, "GIN_MODE", "release"),
		LogLevel:        stringOr(g, "LOG_LEVEL", "info"),
		RemoteBaseURL:   strings.TrimRight(stringOr(g, "REMOTE_BASE_URL", "http://localhost:8000"), "/"),
		RemoteTimeout:   durationOr(g, "REMOTE_TIMEOUT", 60*time.Second),
		ObjectBackend:   strings.ToLower(stringOr(g, "OBJECT_BACKEND", "memory")),
		ObjectURLPrefix: stringOr(g, "OBJECT_URL_PREFIX", "/objects/"),
		PreviewMaxSide:  intOr(g, "PREVIEW_MAX_SIDE", 1024),
		SessionIdleTTL:  durationOr(g, "SESSION_IDLE_TTL", 30*time.Minute),
		Minio: MinioConfig{
			Endpoint: stringOr(g, "MINIO_ENDPOINT", "minio:9000"),
			User:     g.GetString("MINIO_USER"),
			Pass:     g.GetString("MINIO_PASS"),
			Bucket:   stringOr(g, "BUCKET_NAME", "object-urls"),
			UseSSL:   boolOr(g, "MINIO_USE_SSL", false),
		},
		Kafka: KafkaConfig{
			Broker: g.GetString("KAFKA_BROKER"),
			Topic:  stringOr(g, "KAFKA_TOPIC", "digitizer-events"),
		},
	}
}

func stringOr(g StringGetter, key, fallback string) string {
	if v := strings.TrimSpace(g.GetString(key)); v != "" {
		return v
	}
	return fallback
}

func intOr(g StringGetter, key string, fallback int) int {
	raw := strings.TrimSpace(g.GetString(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Incorrect int value %q for %s, using default %d", raw, key, fallback)
		return fallback
	}
	return v
}

func boolOr(g StringGetter, key string, fallback bool) bool {
	raw := strings.TrimSpace(g.GetString(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("Incorrect bool value %q for %s, using default %v", raw, key, fallback)
		return fallback
	}
	return v
}

func durationOr(g StringGetter, key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(g.GetString(key))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Incorrect duration %q for %s, using default %v", raw, key, fallback)
		return fallback
	}
	return v
}
