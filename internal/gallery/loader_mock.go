package gallery

import (
	"context"
	"sync"

	"github.com/UnendingLoop/ImageDigitizer/internal/model"
)

type mockRemote struct {
	listFn    func(ctx context.Context) ([]model.GalleryEntry, error)
	variantFn func(ctx context.Context, id string, kind model.VariantKind, p model.ProcessingParameters) (model.Blob, error)
	fetchFn   func(ctx context.Context, rawURL string) (model.Blob, error)

	mu       sync.Mutex
	requests []string
}

func (m *mockRemote) ListImages(ctx context.Context) ([]model.GalleryEntry, error) {
	return m.listFn(ctx)
}

func (m *mockRemote) Variant(ctx context.Context, id string, kind model.VariantKind, p model.ProcessingParameters) (model.Blob, error) {
	m.mu.Lock()
	m.requests = append(m.requests, id+"/"+string(kind))
	m.mu.Unlock()
	return m.variantFn(ctx, id, kind, p)
}

func (m *mockRemote) FetchURL(ctx context.Context, rawURL string) (model.Blob, error) {
	return m.fetchFn(ctx, rawURL)
}

func (m *mockRemote) seen() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.requests...)
}
