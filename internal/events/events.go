// Package events carries state-change notifications of session components to subscribers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/UnendingLoop/ImageDigitizer/internal/mwlogger"
)

const (
	ComponentUpload  = "upload"
	ComponentGallery = "gallery"
	ComponentSession = "session"
)

// Event is one state change. State holds a snapshot of the component state.
type Event struct {
	Session   string    `json:"session"`
	Component string    `json:"component"`
	Kind      string    `json:"kind"`
	State     any       `json:"state,omitempty"`
	At        time.Time `json:"at"`
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher - контракт доставки событий
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Multi fans an event out to every publisher. Failures are logged, never returned.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	logger := mwlogger.LoggerFromContext(ctx)
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			logger.Error().Err(err).Str("kind", e.Kind).Str("session", e.Session).Msg("Failed to publish event")
		}
	}
	return nil
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

// Notifier binds a publisher to one session and component. It satisfies the
// notifier contract of the upload and gallery components.
type Notifier struct {
	Publisher Publisher
	Session   string
	Component string
}

func (n Notifier) Notify(ctx context.Context, kind string, state any) {
	if n.Publisher == nil {
		return
	}
	e := Event{
		Session:   n.Session,
		Component: n.Component,
		Kind:      kind,
		State:     state,
		At:        time.Now().UTC(),
	}
	if err := n.Publisher.Publish(ctx, e); err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Str("kind", kind).Msg("Failed to publish event")
	}
}
