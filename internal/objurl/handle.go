package objurl

import (
	"context"

	"github.com/UnendingLoop/ImageDigitizer/internal/model"
)

// Handle owns at most one URL at a time.
type Handle struct {
	registry *Registry
	url      string
}

func NewHandle(r *Registry) *Handle {
	return &Handle{registry: r}
}

func (h *Handle) URL() string {
	return h.url
}

// Replace acquires a URL for blob and only then releases the one held before,
// so a failed acquisition leaves the previous URL in place.
func (h *Handle) Replace(ctx context.Context, blob model.Blob) (string, error) {
	url, err := h.registry.Create(ctx, blob)
	if err != nil {
		return "", err
	}
	h.Release(ctx)
	h.url = url
	return url, nil
}

// Release revokes the held URL, if any.
func (h *Handle) Release(ctx context.Context) {
	if h.url == "" {
		return
	}
	h.registry.Revoke(ctx, h.url)
	h.url = ""
}
