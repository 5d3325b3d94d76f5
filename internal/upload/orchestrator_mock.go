package upload

import (
	"context"
	"sync"

	"github.com/UnendingLoop/ImageDigitizer/internal/model"
)

type mockRemote struct {
	uploadFn  func(ctx context.Context, file model.SourceFile) (*model.UploadResult, error)
	variantFn func(ctx context.Context, id string, kind model.VariantKind, p model.ProcessingParameters) (model.Blob, error)

	mu           sync.Mutex
	uploadCalls  int
	variantCalls int
}

func (m *mockRemote) Upload(ctx context.Context, file model.SourceFile) (*model.UploadResult, error) {
	m.mu.Lock()
	m.uploadCalls++
	m.mu.Unlock()
	return m.uploadFn(ctx, file)
}

func (m *mockRemote) Variant(ctx context.Context, id string, kind model.VariantKind, p model.ProcessingParameters) (model.Blob, error) {
	m.mu.Lock()
	m.variantCalls++
	m.mu.Unlock()
	return m.variantFn(ctx, id, kind, p)
}

func (m *mockRemote) calls() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploadCalls, m.variantCalls
}

//----------------------------------

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []string
}

func (n *recordingNotifier) Notify(ctx context.Context, kind string, state any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, kind)
}

func (n *recordingNotifier) seen() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.kinds...)
}
