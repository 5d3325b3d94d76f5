// Package session keeps one upload orchestrator and one gallery loader per browser session.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/UnendingLoop/ImageDigitizer/internal/events"
	"github.com/UnendingLoop/ImageDigitizer/internal/gallery"
	"github.com/UnendingLoop/ImageDigitizer/internal/model"
	"github.com/UnendingLoop/ImageDigitizer/internal/mwlogger"
	"github.com/UnendingLoop/ImageDigitizer/internal/objurl"
	"github.com/UnendingLoop/ImageDigitizer/internal/upload"
	"github.com/google/uuid"
)

// CookieName is the cookie carrying the session id.
const CookieName = "digitizer_session"

// Remote is everything both components need from the processing service.
type Remote interface {
	upload.RemoteService
	gallery.RemoteService
}

type Session struct {
	ID      string
	Upload  *upload.Orchestrator
	Gallery *gallery.Loader

	lastSeen time.Time
}

type Registry struct {
	remote         Remote
	objects        *objurl.Registry
	publisher      events.Publisher
	previewMaxSide int
	now            func() time.Time
	attached       func(id string) bool

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(remote Remote, objects *objurl.Registry, publisher events.Publisher, previewMaxSide int) *Registry {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Registry{
		remote:         remote,
		objects:        objects,
		publisher:      publisher,
		previewMaxSide: previewMaxSide,
		now:            time.Now,
		sessions:       make(map[string]*Session),
	}
}

// GetOrCreate returns the live session id, or a new one when id is empty or unknown.
// The second value reports whether the session was created.
func (r *Registry) GetOrCreate(ctx context.Context, id string) (*Session, bool) {
	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		s.lastSeen = r.now()
		r.mu.Unlock()
		return s, false
	}

	s := r.newSession(uuid.NewString())
	r.sessions[s.ID] = s
	r.mu.Unlock()

	logger := mwlogger.LoggerFromContext(ctx)
	logger.Info().Str("session", s.ID).Msg("Session created")
	r.notify(ctx, s.ID, "created")
	return s, true
}

// SetAttached installs a check for open event streams. Sessions with a stream attached
// are never swept and count as seen.
func (r *Registry) SetAttached(fn func(id string) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attached = fn
}

// Get returns a live session and refreshes its idle timer.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	s.lastSeen = r.now()
	return s, nil
}

// Teardown closes both components of the session and revokes every URL they hold.
func (r *Registry) Teardown(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return model.ErrSessionNotFound
	}
	r.close(ctx, s)
	return nil
}

// Sweep tears down sessions not seen for longer than idle. Returns how many were removed.
func (r *Registry) Sweep(ctx context.Context, idle time.Duration) int {
	now := r.now()
	deadline := now.Add(-idle)

	r.mu.Lock()
	var stale []*Session
	for id, s := range r.sessions {
		if r.attached != nil && r.attached(id) {
			s.lastSeen = now
			continue
		}
		if s.lastSeen.Before(deadline) {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		r.close(ctx, s)
	}
	if len(stale) > 0 {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Info().Int("count", len(stale)).Msg("Idle sessions swept")
	}
	return len(stale)
}

// Shutdown tears every session down and waits for their background work, bounded by ctx.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range all {
		r.close(ctx, s)
	}

	done := make(chan struct{})
	go func() {
		for _, s := range all {
			s.Upload.Wait()
			s.Gallery.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) newSession(id string) *Session {
	return &Session{
		ID: id,
		Upload: upload.NewOrchestrator(r.remote, r.objects,
			events.Notifier{Publisher: r.publisher, Session: id, Component: events.ComponentUpload},
			r.previewMaxSide),
		Gallery: gallery.NewLoader(r.remote, r.objects,
			events.Notifier{Publisher: r.publisher, Session: id, Component: events.ComponentGallery}),
		lastSeen: r.now(),
	}
}

func (r *Registry) close(ctx context.Context, s *Session) {
	s.Upload.Close(ctx)
	s.Gallery.Teardown(ctx)
	r.notify(ctx, s.ID, "closed")
}

func (r *Registry) notify(ctx context.Context, id, kind string) {
	events.Notifier{Publisher: r.publisher, Session: id, Component: events.ComponentSession}.Notify(ctx, kind, nil)
}
