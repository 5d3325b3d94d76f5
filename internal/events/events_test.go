package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func TestMulti_DeliversToAll(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("broker down")}
	ok := &recordingPublisher{}

	err := Multi{failing, ok}.Publish(context.Background(), Event{Kind: "selected"})
	require.NoError(t, err)
	require.Len(t, failing.events, 1)
	require.Len(t, ok.events, 1)
}

func TestNotifier_FillsEvent(t *testing.T) {
	pub := &recordingPublisher{}
	n := Notifier{Publisher: pub, Session: "s1", Component: ComponentGallery}

	n.Notify(context.Background(), "variant_loaded", map[string]int{"x": 1})

	require.Len(t, pub.events, 1)
	e := pub.events[0]
	require.Equal(t, "s1", e.Session)
	require.Equal(t, ComponentGallery, e.Component)
	require.Equal(t, "variant_loaded", e.Kind)
	require.False(t, e.At.IsZero())

	data, err := e.Marshal()
	require.NoError(t, err)
	require.Contains(t, string(data), `"component":"gallery"`)
}

func TestNotifier_NilPublisher(t *testing.T) {
	require.NotPanics(t, func() {
		Notifier{}.Notify(context.Background(), "closed", nil)
	})
}
