package objurl

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/UnendingLoop/ImageDigitizer/internal/model"
	"github.com/UnendingLoop/ImageDigitizer/internal/storage/memstorage"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateOpenRevoke(t *testing.T) {
	ctx := context.Background()
	strg := memstorage.New()
	reg := NewRegistry(strg, "/objects/")

	url, err := reg.Create(ctx, model.Blob{Data: []byte("img"), ContentType: model.PNG})
	require.NoError(t, err)
	require.Contains(t, url, "/objects/")
	require.True(t, reg.Owns(url))
	require.Equal(t, 1, reg.Live())

	rc, cType, err := reg.Open(ctx, url)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "img", string(data))
	require.Equal(t, model.PNG, cType)

	reg.Revoke(ctx, url)
	require.False(t, reg.Owns(url))
	require.Equal(t, 0, reg.Live())
	require.Equal(t, 0, strg.Len())

	_, _, err = reg.Open(ctx, url)
	require.ErrorIs(t, err, model.ErrObjectNotFound)

	// повторный revoke ничего не ломает
	reg.Revoke(ctx, url)
	require.Equal(t, 0, reg.Live())
}

func TestRegistry_IgnoresForeignURLs(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(memstorage.New(), "/objects/")

	reg.Revoke(ctx, "https://remote.example.com/img.png")
	reg.Revoke(ctx, "/objects/not-a-uuid")
	require.False(t, reg.Owns("https://remote.example.com/img.png"))

	_, _, err := reg.OpenID(ctx, "not-a-uuid")
	require.ErrorIs(t, err, model.ErrObjectNotFound)
}

type failingStorage struct {
	*memstorage.MemStorage
}

func (failingStorage) Put(ctx context.Context, key string, size int64, ct string, r io.Reader) error {
	return errors.New("storage is down")
}

func TestHandle_Replace(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(memstorage.New(), "")
	h := NewHandle(reg)

	first, err := h.Replace(ctx, model.Blob{Data: []byte("1")})
	require.NoError(t, err)
	second, err := h.Replace(ctx, model.Blob{Data: []byte("2")})
	require.NoError(t, err)

	require.NotEqual(t, first, second)
	require.False(t, reg.Owns(first))
	require.True(t, reg.Owns(second))
	require.Equal(t, second, h.URL())
	require.Equal(t, 1, reg.Live())

	h.Release(ctx)
	require.Empty(t, h.URL())
	require.Equal(t, 0, reg.Live())
}

func TestHandle_ReplaceFailureKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	mem := memstorage.New()
	reg := NewRegistry(mem, "")
	h := NewHandle(reg)

	prev, err := h.Replace(ctx, model.Blob{Data: []byte("1")})
	require.NoError(t, err)

	reg.storage = failingStorage{mem}
	_, err = h.Replace(ctx, model.Blob{Data: []byte("2")})
	require.Error(t, err)
	require.Equal(t, prev, h.URL())
	require.True(t, reg.Owns(prev))
}
