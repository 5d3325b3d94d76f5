package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/UnendingLoop/ImageDigitizer/internal/events"
	"github.com/wb-go/wbf/retry"
)

// Producer is the part of wbf kafka producer used for publishing.
type Producer interface {
	SendWithRetry(ctx context.Context, strategy retry.Strategy, key []byte, v []byte) error
}

// Стратегия ретрая отправки в очередь
var retryStrategy = retry.Strategy{
	Attempts: 3,
	Delay:    500 * time.Millisecond,
	Backoff:  2,
}

// Publisher writes session events to the activity topic, keyed by session id.
type Publisher struct {
	producer Producer
	strategy retry.Strategy
}

func NewPublisher(p Producer) *Publisher {
	return &Publisher{producer: p, strategy: retryStrategy}
}

func (p *Publisher) Publish(ctx context.Context, e events.Event) error {
	// в лог событий полные снапшоты не пишем
	e.State = nil
	data, err := e.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal event %q: %w", e.Kind, err)
	}
	if err := p.producer.SendWithRetry(ctx, p.strategy, []byte(e.Session), data); err != nil {
		return fmt.Errorf("failed to send event %q to kafka: %w", e.Kind, err)
	}
	return nil
}
