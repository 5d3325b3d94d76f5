// Package storage provides blob backends behind object URLs
package storage

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/UnendingLoop/ImageDigitizer/internal/config"
	"github.com/UnendingLoop/ImageDigitizer/internal/storage/memstorage"
	"github.com/UnendingLoop/ImageDigitizer/internal/storage/miniostorage"
)

// BlobStorage - контракт для работы с хранилищем бинарников
type BlobStorage interface {
	Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error
	Get(ctx context.Context, key string) (output io.ReadCloser, ctype string, err error)
	Delete(ctx context.Context, key string) error
}

const (
	BackendMemory = "memory"
	BackendMinio  = "minio"
)

// NewBlobStorage picks the backend from config. MinIO is retried until it answers or ctx is done.
func NewBlobStorage(ctx context.Context, cfg *config.AppConfig, delay time.Duration) (BlobStorage, error) {
	if cfg.ObjectBackend != BackendMinio {
		log.Println("Using in-memory blob storage for object URLs")
		return memstorage.New(), nil
	}

	for {
		log.Println("Connecting to blob-storage...")
		client, err := miniostorage.NewMinioClient(ctx, cfg.Minio)
		if err == nil {
			log.Println("Successfully connected blob-storage!")
			return client, nil
		}
		log.Printf("Failed to init connection to blob-storage: %v\nNext retry in %v...", err, delay)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}
