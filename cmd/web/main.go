// Package main (in web-subfolder) launches the digitizer web client
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/UnendingLoop/ImageDigitizer/internal/config"
	"github.com/UnendingLoop/ImageDigitizer/internal/events"
	"github.com/UnendingLoop/ImageDigitizer/internal/kafka"
	"github.com/UnendingLoop/ImageDigitizer/internal/mwlogger"
	"github.com/UnendingLoop/ImageDigitizer/internal/objurl"
	"github.com/UnendingLoop/ImageDigitizer/internal/remote"
	"github.com/UnendingLoop/ImageDigitizer/internal/session"
	"github.com/UnendingLoop/ImageDigitizer/internal/sse"
	"github.com/UnendingLoop/ImageDigitizer/internal/storage"
	"github.com/UnendingLoop/ImageDigitizer/internal/transport"
	"github.com/wb-go/wbf/ginext"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/zlog"
	"golang.org/x/sync/errgroup"
)

func main() {
	// инициализировать конфиг/ считать энвы
	appConfig := config.Load("./.env")

	// стартуем логгер
	zlog.InitConsole()
	if err := zlog.SetLevel(appConfig.LogLevel); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	// готовим заранее слушатель прерываний - контекст для всего приложения
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// подключиться к хранилищу блобов для object-URL
	strg, err := storage.NewBlobStorage(ctx, appConfig, 10*time.Second)
	if err != nil {
		log.Fatalf("Failed to init blob storage: %v", err)
	}
	objects := objurl.NewRegistry(strg, appConfig.ObjectURLPrefix)

	// клиент удалённого сервиса оцифровки
	client := remote.NewClient(appConfig.RemoteBaseURL, appConfig.RemoteTimeout)

	// события: SSE всегда, кафка - если задан брокер
	hub := sse.NewHub()
	publishers := events.Multi{hub}
	producer := connectKafka(ctx, appConfig.Kafka)
	if producer != nil {
		publishers = append(publishers, kafka.NewPublisher(producer))
	}

	sessions := session.NewRegistry(client, objects, publishers, appConfig.PreviewMaxSide)
	// сессия с открытым SSE-потоком не считается брошенной
	sessions.SetAttached(func(id string) bool { return hub.Subscribers(id) > 0 })

	// cоздаем экземпляр хендлера HTTP
	handlers := transport.NewDigitizerHandler(sessions, objects, hub)
	// сетапим сервер
	engine := ginext.New(appConfig.GinMode)

	engine.GET("/ping", handlers.SimplePinger)
	engine.GET("/api/state", handlers.GetState)
	engine.POST("/api/file", handlers.SelectFile)       // выбор файла + фоновая загрузка
	engine.PATCH("/api/params", handlers.SetParameters) // параметры обработки
	engine.POST("/api/process", handlers.Process)
	engine.GET("/api/download", handlers.Download)
	engine.GET("/api/gallery", handlers.GetGallery)
	engine.POST("/api/gallery/:id/select", handlers.SelectEntry)
	engine.GET("/api/gallery/selection", handlers.GetSelection)
	engine.DELETE("/api/gallery/selection", handlers.CloseSelection)
	engine.GET("/api/gallery/selection/:variant/download", handlers.DownloadVariant)
	engine.DELETE("/api/session", handlers.DeleteSession)
	engine.GET(strings.TrimSuffix(appConfig.ObjectURLPrefix, "/")+"/:id", handlers.ServeObject)
	engine.GET("/events", handlers.Events)

	srv := &http.Server{
		Addr:              ":" + appConfig.Port,
		Handler:           mwlogger.NewMWLogger(engine),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	// Server launch
	g.Go(func() error {
		log.Printf("Server running on http://localhost%s\n", srv.Addr)
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			log.Println("Server gracefully stopping...")
			return nil
		}
		return err
	})

	// фоновая чистка брошенных сессий
	g.Go(func() error {
		sweepLoop(gctx, sessions, appConfig.SessionIdleTTL)
		return nil
	})

	// ждем отмены контекста для запуска грейсфул закрытия
	g.Go(func() error {
		<-gctx.Done()
		shutdown(srv, sessions, producer)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("Server stopped: %v", err)
	}
	log.Println("Exiting app...")
}

// connectKafka returns nil when no broker is configured or it never became ready.
func connectKafka(ctx context.Context, cfg config.KafkaConfig) *wbfkafka.Producer {
	if cfg.Broker == "" {
		log.Println("KAFKA_BROKER is not set, activity stream disabled")
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	// ждем пока кафка раздуплится
	if err := kafka.WaitKafkaReady(waitCtx, cfg.Broker, 5*time.Second); err != nil {
		log.Printf("Kafka is unavailable (%v), activity stream disabled", err)
		return nil
	}
	if err := kafka.InitKafkaTopics(waitCtx, cfg.Broker, 5*time.Second, cfg.Topic); err != nil {
		log.Printf("Failed to create topic %q (%v), activity stream disabled", cfg.Topic, err)
		return nil
	}
	return wbfkafka.NewProducer([]string{cfg.Broker}, cfg.Topic)
}

func sweepLoop(ctx context.Context, sessions SessionSweeper, idle time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			log.Println("Sweep loop crashed:", r)
		}
	}()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions.Sweep(context.Background(), idle)
		}
	}
}

func shutdown(srv *http.Server, sessions SessionSweeper, producer *wbfkafka.Producer) {
	log.Println("Interrupt received!!! Starting shutdown sequence...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Println("Failed to shutdown server gracefully:", err)
	}

	// отзываем все object-URL живых сессий
	if err := sessions.Shutdown(shutdownCtx); err != nil {
		log.Println("Sessions did not settle before shutdown deadline:", err)
	}
	log.Println("All sessions closed.")

	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Println("Failed to close Kafka-producer:", err)
		}
		log.Println("Kafka-producer connection closed.")
	}
}
