package kafka

import (
	"context"

	"github.com/wb-go/wbf/retry"
)

type mockProducer struct {
	sendFn func(ctx context.Context, strategy retry.Strategy, key []byte, v []byte) error
}

func (m *mockProducer) SendWithRetry(ctx context.Context, strategy retry.Strategy, key []byte, v []byte) error {
	return m.sendFn(ctx, strategy, key, v)
}
