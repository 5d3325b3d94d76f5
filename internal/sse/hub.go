// Package sse pushes session events to browsers over Server-Sent Events.
package sse

import (
	"context"
	"fmt"
	"sync"

	"github.com/UnendingLoop/ImageDigitizer/internal/events"
)

// Hub routes messages to subscribers of a topic. A topic is a session id.
// All changes of the topic map happen in the Run loop.
type Hub struct {
	topics map[string]map[chan []byte]bool

	subscribe   chan subscription
	unsubscribe chan subscription
	publish     chan topicMessage
	done        chan struct{}

	mu sync.Mutex
}

type subscription struct {
	ch    chan []byte
	topic string
}

type topicMessage struct {
	topic string
	msg   []byte
}

func NewHub() *Hub {
	return &Hub{
		topics:      make(map[string]map[chan []byte]bool),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		publish:     make(chan topicMessage, 100),
		done:        make(chan struct{}),
	}
}

// Run serves subscriptions until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-h.subscribe:
			h.mu.Lock()
			subs, ok := h.topics[s.topic]
			if !ok {
				subs = make(map[chan []byte]bool)
				h.topics[s.topic] = subs
			}
			subs[s.ch] = true
			h.mu.Unlock()
		case s := <-h.unsubscribe:
			h.mu.Lock()
			if subs, ok := h.topics[s.topic]; ok {
				delete(subs, s.ch)
				if len(subs) == 0 {
					delete(h.topics, s.topic)
				}
			}
			h.mu.Unlock()
		case tm := <-h.publish:
			h.mu.Lock()
			for ch := range h.topics[tm.topic] {
				select {
				case ch <- tm.msg:
				default:
					// клиент не читает - пропускаем
				}
			}
			h.mu.Unlock()
		}
	}
}

// PublishTopic queues msg for every subscriber of topic. Dropped once the hub has stopped.
func (h *Hub) PublishTopic(topic string, msg []byte) {
	select {
	case h.publish <- topicMessage{topic: topic, msg: msg}:
	case <-h.done:
	}
}

// Subscribe registers ch for topic. The caller owns ch and must unsubscribe it.
func (h *Hub) Subscribe(ch chan []byte, topic string) bool {
	select {
	case h.subscribe <- subscription{ch: ch, topic: topic}:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unsubscribe(ch chan []byte, topic string) {
	select {
	case h.unsubscribe <- subscription{ch: ch, topic: topic}:
	case <-h.done:
	}
}

// Subscribers returns the number of channels subscribed to topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}

// Publish sends the event to the browsers of its session.
func (h *Hub) Publish(ctx context.Context, e events.Event) error {
	data, err := e.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal event %q: %w", e.Kind, err)
	}
	h.PublishTopic(e.Session, data)
	return nil
}
