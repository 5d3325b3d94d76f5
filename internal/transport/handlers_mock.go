package transport

import (
	"context"

	"github.com/UnendingLoop/ImageDigitizer/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/wb-go/wbf/ginext"
)

type mockRemote struct {
	uploadFn  func(ctx context.Context, file model.SourceFile) (*model.UploadResult, error)
	listFn    func(ctx context.Context) ([]model.GalleryEntry, error)
	variantFn func(ctx context.Context, id string, kind model.VariantKind, p model.ProcessingParameters) (model.Blob, error)
	fetchFn   func(ctx context.Context, rawURL string) (model.Blob, error)
}

func (m *mockRemote) Upload(ctx context.Context, file model.SourceFile) (*model.UploadResult, error) {
	return m.uploadFn(ctx, file)
}

func (m *mockRemote) ListImages(ctx context.Context) ([]model.GalleryEntry, error) {
	return m.listFn(ctx)
}

func (m *mockRemote) Variant(ctx context.Context, id string, kind model.VariantKind, p model.ProcessingParameters) (model.Blob, error) {
	return m.variantFn(ctx, id, kind, p)
}

func (m *mockRemote) FetchURL(ctx context.Context, rawURL string) (model.Blob, error) {
	return m.fetchFn(ctx, rawURL)
}

type mockStream struct {
	streamFn func(c *ginext.Context, topic string)
}

func (m *mockStream) Stream(c *ginext.Context, topic string) {
	m.streamFn(c, topic)
}

func init() {
	gin.SetMode(gin.TestMode)
}
