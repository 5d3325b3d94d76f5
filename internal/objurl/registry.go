// Package objurl issues locally scoped URLs for fetched binaries and releases them on demand.
//
// A URL stays servable until it is revoked. Every component that creates one owns it and
// must revoke it when the binary is superseded or the view that shows it is torn down.
package objurl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/UnendingLoop/ImageDigitizer/internal/model"
	"github.com/UnendingLoop/ImageDigitizer/internal/mwlogger"
	"github.com/google/uuid"
)

// BlobStorage - контракт для работы с хранилищем
type BlobStorage interface {
	Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error
	Get(ctx context.Context, key string) (output io.ReadCloser, ctype string, err error)
	Delete(ctx context.Context, key string) error
}

type Registry struct {
	storage BlobStorage
	prefix  string

	mu   sync.Mutex
	live map[string]struct{}
}

func NewRegistry(strg BlobStorage, prefix string) *Registry {
	if prefix == "" {
		prefix = "/objects/"
	}
	return &Registry{
		storage: strg,
		prefix:  prefix,
		live:    make(map[string]struct{}),
	}
}

// Create stores the blob and returns a fresh URL for it.
func (r *Registry) Create(ctx context.Context, blob model.Blob) (string, error) {
	id := uuid.NewString()
	if err := r.storage.Put(ctx, id, int64(len(blob.Data)), blob.ContentType, bytes.NewReader(blob.Data)); err != nil {
		return "", fmt.Errorf("failed to store blob for object URL: %w", err)
	}

	r.mu.Lock()
	r.live[id] = struct{}{}
	r.mu.Unlock()

	return r.prefix + id, nil
}

// Revoke releases url. Unknown or already revoked URLs are ignored.
func (r *Registry) Revoke(ctx context.Context, url string) {
	id, ok := r.idOf(url)
	if !ok {
		return
	}

	r.mu.Lock()
	_, live := r.live[id]
	delete(r.live, id)
	r.mu.Unlock()

	if !live {
		return
	}
	if err := r.storage.Delete(ctx, id); err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Str("object_url", url).Msg("Failed to delete revoked blob from Storage")
	}
}

// Open returns the binary behind url.
func (r *Registry) Open(ctx context.Context, url string) (io.ReadCloser, string, error) {
	id, ok := r.idOf(url)
	if !ok || !r.isLive(id) {
		return nil, "", model.ErrObjectNotFound
	}

	data, cType, err := r.storage.Get(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read blob for object URL: %w", err)
	}
	return data, cType, nil
}

// OpenID is Open for the bare id part of a URL, as routed by the HTTP layer.
func (r *Registry) OpenID(ctx context.Context, id string) (io.ReadCloser, string, error) {
	return r.Open(ctx, r.prefix+id)
}

// Owns reports whether url was issued here and is still live.
func (r *Registry) Owns(url string) bool {
	id, ok := r.idOf(url)
	return ok && r.isLive(id)
}

// Live returns the number of URLs not yet revoked.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

func (r *Registry) isLive(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.live[id]
	return ok
}

func (r *Registry) idOf(url string) (string, bool) {
	id, ok := strings.CutPrefix(url, r.prefix)
	if !ok || uuid.Validate(id) != nil {
		return "", false
	}
	return id, true
}
