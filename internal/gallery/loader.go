// Package gallery lists uploaded images and, for the selected one, loads the compressed
// and digitized renditions side by side.
package gallery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/UnendingLoop/ImageDigitizer/internal/model"
	"github.com/UnendingLoop/ImageDigitizer/internal/mwlogger"
	"github.com/UnendingLoop/ImageDigitizer/internal/objurl"
	"golang.org/x/sync/errgroup"
)

// RemoteService - контракт удалённого сервиса для галереи
type RemoteService interface {
	ListImages(ctx context.Context) ([]model.GalleryEntry, error)
	Variant(ctx context.Context, id string, kind model.VariantKind, p model.ProcessingParameters) (model.Blob, error)
	FetchURL(ctx context.Context, rawURL string) (model.Blob, error)
}

type Notifier interface {
	Notify(ctx context.Context, kind string, state any)
}

var errStale = errors.New("stale variant discarded")

type Loader struct {
	remote   RemoteService
	objects  *objurl.Registry
	notifier Notifier

	mu         sync.Mutex
	state      State
	compressed *objurl.Handle
	digitized  *objurl.Handle
	cancel     context.CancelFunc
	closed     bool

	inflight sync.WaitGroup
}

func NewLoader(remote RemoteService, objects *objurl.Registry, notifier Notifier) *Loader {
	return &Loader{
		remote:     remote,
		objects:    objects,
		notifier:   notifier,
		compressed: objurl.NewHandle(objects),
		digitized:  objurl.NewHandle(objects),
	}
}

func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.clone()
}

// LoadGallery refreshes the listing. A failed listing shows an empty gallery.
func (l *Loader) LoadGallery(ctx context.Context) (State, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	entries, err := l.remote.ListImages(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load gallery, showing empty list")
		entries = nil
	}
	return l.dispatch(ctx, listed{entries: entries})
}

// Select opens entry id: the original is shown at once, both fetched variants start loading.
func (l *Loader) Select(ctx context.Context, id string) (State, error) {
	st, err := l.dispatch(ctx, selected{entry: model.GalleryEntry{ID: id}})
	if err != nil {
		return st, err
	}

	fetchCtx, cancel := context.WithCancel(mwlogger.Detach(ctx))
	l.mu.Lock()
	if l.state.gen != st.gen {
		// уже выбрана другая картинка
		l.mu.Unlock()
		cancel()
		return st, nil
	}
	if l.cancel != nil {
		l.cancel()
	}
	l.cancel = cancel
	l.mu.Unlock()

	l.inflight.Add(1)
	go func() {
		defer l.inflight.Done()
		defer cancel()
		l.fetchPair(fetchCtx, st.gen, id)
	}()

	return st, nil
}

func (l *Loader) fetchPair(ctx context.Context, gen uint64, id string) {
	logger := mwlogger.LoggerFromContext(ctx).With().Str("image_id", id).Logger()

	var g errgroup.Group
	for _, kind := range []model.VariantKind{model.KindCompressed, model.KindDigitized} {
		g.Go(func() error {
			blob, err := l.remote.Variant(ctx, id, kind, model.PreviewParameters)
			if err != nil {
				if _, dErr := l.dispatch(ctx, variantFailed{gen: gen, kind: kind, err: err}); discarded(dErr) {
					logger.Debug().Err(err).Str("variant", string(kind)).Msg("Superseded gallery variant failed")
					return nil
				}
				logger.Error().Err(err).Str("variant", string(kind)).Msg("Failed to load gallery variant")
				return err
			}
			if _, err := l.dispatch(ctx, variantLoaded{gen: gen, kind: kind, blob: blob}); err != nil {
				if discarded(err) {
					logger.Debug().Str("variant", string(kind)).Msg("Late gallery variant discarded")
					return nil
				}
				logger.Error().Err(err).Str("variant", string(kind)).Msg("Failed to publish gallery variant")
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Warn().Err(err).Msg("Variant pair finished with failures")
		return
	}
	logger.Debug().Msg("Variant pair loaded")
}

// Close closes the current selection and revokes the fetched variant URLs.
func (l *Loader) Close(ctx context.Context) (State, error) {
	l.stopFetches()
	return l.dispatch(ctx, selectionClosed{})
}

// Teardown disposes of the whole view. Late results are dropped.
func (l *Loader) Teardown(ctx context.Context) {
	l.stopFetches()
	_, _ = l.dispatch(ctx, viewClosed{})
}

// Download opens a loaded variant of the selection. The caller closes the reader.
func (l *Loader) Download(ctx context.Context, key model.VariantKey) (io.ReadCloser, string, string, error) {
	l.mu.Lock()
	sel := l.state.Selection
	var (
		slot  Slot
		entry model.GalleryEntry
	)
	if sel != nil {
		slot, entry = sel.Slot(key), sel.Entry
	}
	l.mu.Unlock()

	if sel == nil {
		return nil, "", "", model.ErrNoSelection
	}
	if slot.Status != SlotLoaded {
		return nil, "", "", model.ErrVariantNotReady
	}

	if key == model.KeyOriginal {
		blob, err := l.remote.FetchURL(ctx, slot.URL)
		if err != nil {
			return nil, "", "", err
		}
		return io.NopCloser(bytes.NewReader(blob.Data)), blob.ContentType, model.VariantFileName(entry.ID, key, blob.ContentType), nil
	}

	data, cType, err := l.objects.Open(ctx, slot.URL)
	if err != nil {
		return nil, "", "", err
	}
	if slot.ContentType != "" {
		cType = slot.ContentType
	}
	return data, cType, model.VariantFileName(entry.ID, key, cType), nil
}

// Wait blocks until background fetches have settled.
func (l *Loader) Wait() {
	l.inflight.Wait()
}

func (l *Loader) stopFetches() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

func (l *Loader) dispatch(ctx context.Context, msg any) (State, error) {
	l.mu.Lock()
	if l.closed {
		st := l.state.clone()
		l.mu.Unlock()
		return st, model.ErrClosed
	}

	kind, err := l.reduce(ctx, msg)
	st := l.state.clone()
	l.mu.Unlock()

	if kind != "" && l.notifier != nil {
		l.notifier.Notify(ctx, kind, st)
	}
	return st, err
}

func (l *Loader) reduce(ctx context.Context, msg any) (string, error) {
	s := &l.state

	switch m := msg.(type) {
	case listed:
		s.Entries = m.entries
		s.Loaded = true
		return "gallery_loaded", nil

	case selected:
		entry, ok := s.find(m.entry.ID)
		if !ok {
			return "", model.ErrEntryNotFound
		}
		l.releaseSelection(ctx)
		s.gen++
		s.Selection = &VariantSet{
			Entry:      entry,
			Original:   Slot{Status: SlotLoaded, URL: entry.OriginalURL},
			Compressed: Slot{Status: SlotLoading},
			Digitized:  Slot{Status: SlotLoading},
		}
		return "selected", nil

	case variantLoaded:
		if m.gen != s.gen || s.Selection == nil {
			return "", errStale
		}
		h := l.handleOf(m.kind)
		url, err := h.Replace(ctx, m.blob)
		slot := s.Selection.slotOf(m.kind)
		if err != nil {
			*slot = Slot{Status: SlotFailed, Error: err.Error()}
			return "variant_failed", fmt.Errorf("failed to create variant URL: %w", err)
		}
		*slot = Slot{Status: SlotLoaded, URL: url, ContentType: m.blob.ContentType}
		return "variant_loaded", nil

	case variantFailed:
		if m.gen != s.gen || s.Selection == nil {
			return "", errStale
		}
		*s.Selection.slotOf(m.kind) = Slot{Status: SlotFailed, Error: m.err.Error()}
		return "variant_failed", nil

	case selectionClosed:
		l.releaseSelection(ctx)
		s.gen++
		s.Selection = nil
		return "selection_closed", nil

	case viewClosed:
		l.releaseSelection(ctx)
		s.gen++
		s.Selection = nil
		l.closed = true
		return "closed", nil

	default:
		return "", fmt.Errorf("unknown message %T", msg)
	}
}

// discarded reports results dropped because the selection moved on or the view is gone.
func discarded(err error) bool {
	return errors.Is(err, errStale) || errors.Is(err, model.ErrClosed)
}

func (l *Loader) handleOf(kind model.VariantKind) *objurl.Handle {
	if kind == model.KindCompressed {
		return l.compressed
	}
	return l.digitized
}

func (l *Loader) releaseSelection(ctx context.Context) {
	l.compressed.Release(ctx)
	l.digitized.Release(ctx)
}
