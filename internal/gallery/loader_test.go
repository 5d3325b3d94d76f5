package gallery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/UnendingLoop/ImageDigitizer/internal/model"
	"github.com/UnendingLoop/ImageDigitizer/internal/objurl"
	"github.com/UnendingLoop/ImageDigitizer/internal/storage/memstorage"
	"github.com/stretchr/testify/require"
)

var testEntries = []model.GalleryEntry{
	{ID: "A", OriginalURL: "http://remote/static/A.png", Title: "A"},
	{ID: "B", OriginalURL: "http://remote/static/B.png", Title: "B"},
}

func listOK(ctx context.Context) ([]model.GalleryEntry, error) {
	return testEntries, nil
}

func variantOK(ctx context.Context, id string, kind model.VariantKind, p model.ProcessingParameters) (model.Blob, error) {
	return model.Blob{Data: []byte(id + "-" + string(kind)), ContentType: model.JPEG}, nil
}

func newTestLoader(t *testing.T, rm *mockRemote) (*Loader, *objurl.Registry) {
	t.Helper()
	reg := objurl.NewRegistry(memstorage.New(), "/objects/")
	l := NewLoader(rm, reg, nil)
	_, err := l.LoadGallery(context.Background())
	require.NoError(t, err)
	return l, reg
}

func TestLoader_LoadGallery_FailureShowsEmpty(t *testing.T) {
	rm := &mockRemote{
		listFn: func(ctx context.Context) ([]model.GalleryEntry, error) {
			return nil, &model.TransportError{Op: "list images", Status: 500}
		},
	}
	l := NewLoader(rm, objurl.NewRegistry(memstorage.New(), ""), nil)

	st, err := l.LoadGallery(context.Background())
	require.NoError(t, err)
	require.True(t, st.Loaded)
	require.Empty(t, st.Entries)
}

func TestLoader_Select_LoadsBothVariants(t *testing.T) {
	rm := &mockRemote{listFn: listOK, variantFn: variantOK}
	l, reg := newTestLoader(t, rm)

	st, err := l.Select(context.Background(), "A")
	require.NoError(t, err)
	require.Equal(t, SlotLoaded, st.Selection.Original.Status)
	require.Equal(t, "http://remote/static/A.png", st.Selection.Original.URL)
	l.Wait()

	st = l.State()
	require.Equal(t, SlotLoaded, st.Selection.Compressed.Status)
	require.Equal(t, SlotLoaded, st.Selection.Digitized.Status)
	require.True(t, reg.Owns(st.Selection.Compressed.URL))
	require.True(t, reg.Owns(st.Selection.Digitized.URL))
	require.Equal(t, 2, reg.Live())
	require.ElementsMatch(t, []string{"A/compressed", "A/digitized"}, rm.seen())
}

func TestLoader_Select_UsesPreviewParameters(t *testing.T) {
	params := make(chan model.ProcessingParameters, 2)
	rm := &mockRemote{
		listFn: listOK,
		variantFn: func(ctx context.Context, id string, kind model.VariantKind, p model.ProcessingParameters) (model.Blob, error) {
			params <- p
			return variantOK(ctx, id, kind, p)
		},
	}
	l, _ := newTestLoader(t, rm)

	_, err := l.Select(context.Background(), "B")
	require.NoError(t, err)
	l.Wait()

	for i := 0; i < 2; i++ {
		p := <-params
		require.Equal(t, model.Res1280x720, p.Resolution)
		require.Equal(t, model.BitDepth(24), p.BitDepth)
		require.Equal(t, 70, p.Quality)
	}
}

func TestLoader_Select_UnknownEntry(t *testing.T) {
	rm := &mockRemote{listFn: listOK}
	l, _ := newTestLoader(t, rm)

	_, err := l.Select(context.Background(), "nope")
	require.ErrorIs(t, err, model.ErrEntryNotFound)
	require.Nil(t, l.State().Selection)
	require.Empty(t, rm.seen())
}

func TestLoader_Select_PartialFailure(t *testing.T) {
	tests := []struct {
		name   string
		failed model.VariantKind
		loaded model.VariantKey
		broken model.VariantKey
	}{
		{name: "digitized failed", failed: model.KindDigitized, loaded: model.KeyCompressed, broken: model.KeyDigitized},
		{name: "compressed failed", failed: model.KindCompressed, loaded: model.KeyDigitized, broken: model.KeyCompressed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := &mockRemote{
				listFn: listOK,
				variantFn: func(ctx context.Context, id string, kind model.VariantKind, p model.ProcessingParameters) (model.Blob, error) {
					if kind == tt.failed {
						return model.Blob{}, &model.TransportError{Op: "get " + string(kind), Status: 501}
					}
					return variantOK(ctx, id, kind, p)
				},
			}
			l, reg := newTestLoader(t, rm)

			_, err := l.Select(context.Background(), "A")
			require.NoError(t, err)
			l.Wait()

			sel := l.State().Selection
			require.Equal(t, SlotLoaded, sel.Slot(tt.loaded).Status)
			require.True(t, reg.Owns(sel.Slot(tt.loaded).URL))
			broken := sel.Slot(tt.broken)
			require.Equal(t, SlotFailed, broken.Status)
			require.Empty(t, broken.URL)
			require.NotEmpty(t, broken.Error)
			require.Equal(t, SlotLoaded, sel.Original.Status)
			require.Equal(t, 1, reg.Live())

			_, _, _, err = l.Download(context.Background(), tt.broken)
			require.ErrorIs(t, err, model.ErrVariantNotReady)
			rc, _, _, err := l.Download(context.Background(), tt.loaded)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
		})
	}
}

func TestLoader_StaleSelectionIsDiscarded(t *testing.T) {
	releaseA := make(chan struct{})
	startedA := make(chan struct{}, 2)
	rm := &mockRemote{
		listFn: listOK,
		variantFn: func(ctx context.Context, id string, kind model.VariantKind, p model.ProcessingParameters) (model.Blob, error) {
			if id == "A" {
				startedA <- struct{}{}
				<-releaseA
			}
			return variantOK(ctx, id, kind, p)
		},
	}
	l, reg := newTestLoader(t, rm)
	ctx := context.Background()

	_, err := l.Select(ctx, "A")
	require.NoError(t, err)
	<-startedA
	<-startedA

	_, err = l.Select(ctx, "B")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		sel := l.State().Selection
		return sel.Compressed.Status == SlotLoaded && sel.Digitized.Status == SlotLoaded
	}, time.Second, 5*time.Millisecond)

	close(releaseA)
	l.Wait()

	sel := l.State().Selection
	require.Equal(t, "B", sel.Entry.ID)
	for _, key := range []model.VariantKey{model.KeyCompressed, model.KeyDigitized} {
		rc, _, _, err := l.Download(ctx, key)
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		require.Contains(t, string(data), "B-")
	}
	// A never got a URL
	require.Equal(t, 2, reg.Live())
}

func TestLoader_Close_RevokesOnlyFetchedVariants(t *testing.T) {
	rm := &mockRemote{listFn: listOK, variantFn: variantOK}
	l, reg := newTestLoader(t, rm)
	ctx := context.Background()

	_, err := l.Select(ctx, "A")
	require.NoError(t, err)
	l.Wait()
	sel := l.State().Selection

	st, err := l.Close(ctx)
	require.NoError(t, err)
	require.Nil(t, st.Selection)
	require.False(t, reg.Owns(sel.Compressed.URL))
	require.False(t, reg.Owns(sel.Digitized.URL))
	require.Zero(t, reg.Live())
	require.Equal(t, "http://remote/static/A.png", sel.Original.URL)

	// повторное открытие начинает с чистого состояния
	st, err = l.Select(ctx, "A")
	require.NoError(t, err)
	require.Equal(t, SlotLoading, st.Selection.Compressed.Status)
	require.Equal(t, SlotLoading, st.Selection.Digitized.Status)
	l.Wait()
	require.Equal(t, 2, reg.Live())
}

func TestLoader_Close_DiscardsLateResults(t *testing.T) {
	release := make(chan struct{})
	rm := &mockRemote{
		listFn: listOK,
		variantFn: func(ctx context.Context, id string, kind model.VariantKind, p model.ProcessingParameters) (model.Blob, error) {
			select {
			case <-release:
			case <-ctx.Done():
				return model.Blob{}, ctx.Err()
			}
			return variantOK(ctx, id, kind, p)
		},
	}
	l, reg := newTestLoader(t, rm)
	ctx := context.Background()

	_, err := l.Select(ctx, "A")
	require.NoError(t, err)
	_, err = l.Close(ctx)
	require.NoError(t, err)
	close(release)
	l.Wait()

	require.Nil(t, l.State().Selection)
	require.Zero(t, reg.Live())
}

func TestLoader_Download(t *testing.T) {
	rm := &mockRemote{
		listFn:    listOK,
		variantFn: variantOK,
		fetchFn: func(ctx context.Context, rawURL string) (model.Blob, error) {
			if rawURL != "http://remote/static/A.png" {
				return model.Blob{}, errors.New("unexpected url")
			}
			return model.Blob{Data: []byte("original"), ContentType: model.PNG}, nil
		},
	}
	l, _ := newTestLoader(t, rm)
	ctx := context.Background()

	_, _, _, err := l.Download(ctx, model.KeyOriginal)
	require.ErrorIs(t, err, model.ErrNoSelection)

	_, err = l.Select(ctx, "A")
	require.NoError(t, err)
	l.Wait()

	tests := []struct {
		key      model.VariantKey
		wantName string
		wantData string
	}{
		{model.KeyOriginal, "A_original.png", "original"},
		{model.KeyCompressed, "A_compressed.jpg", "A-compressed"},
		{model.KeyDigitized, "A_digitized.jpg", "A-digitized"},
	}
	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			rc, _, name, err := l.Download(ctx, tt.key)
			require.NoError(t, err)
			defer rc.Close()
			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.Equal(t, tt.wantName, name)
			require.Equal(t, tt.wantData, string(data))
		})
	}
}

func TestLoader_Teardown(t *testing.T) {
	rm := &mockRemote{listFn: listOK, variantFn: variantOK}
	l, reg := newTestLoader(t, rm)
	ctx := context.Background()

	_, err := l.Select(ctx, "A")
	require.NoError(t, err)
	l.Wait()

	l.Teardown(ctx)
	require.Zero(t, reg.Live())

	_, err = l.Select(ctx, "B")
	require.ErrorIs(t, err, model.ErrClosed)
}

// blockingVariant returns a successful blob only after release is closed, whatever ctx says.
func blockingVariant(started chan<- struct{}, release <-chan struct{}) func(ctx context.Context, id string, kind model.VariantKind, p model.ProcessingParameters) (model.Blob, error) {
	return func(ctx context.Context, id string, kind model.VariantKind, p model.ProcessingParameters) (model.Blob, error) {
		started <- struct{}{}
		<-release
		return variantOK(ctx, id, kind, p)
	}
}

func TestLoader_Close_DiscardsLateSuccess(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	rm := &mockRemote{listFn: listOK, variantFn: blockingVariant(started, release)}
	l, reg := newTestLoader(t, rm)
	ctx := context.Background()

	_, err := l.Select(ctx, "A")
	require.NoError(t, err)
	<-started
	<-started

	_, err = l.Close(ctx)
	require.NoError(t, err)
	close(release)
	l.Wait()

	require.Nil(t, l.State().Selection)
	require.Zero(t, reg.Live())
}

func TestLoader_Teardown_DiscardsLateSuccess(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	rm := &mockRemote{listFn: listOK, variantFn: blockingVariant(started, release)}
	l, reg := newTestLoader(t, rm)
	ctx := context.Background()

	_, err := l.Select(ctx, "A")
	require.NoError(t, err)
	<-started
	<-started

	l.Teardown(ctx)
	close(release)
	l.Wait()

	require.Nil(t, l.State().Selection)
	require.Zero(t, reg.Live())
}

func TestDiscarded(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errStale, true},
		{model.ErrClosed, true},
		{fmt.Errorf("dispatch: %w", model.ErrClosed), true},
		{errors.New("storage down"), false},
		{nil, false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, discarded(tt.err))
	}
}
