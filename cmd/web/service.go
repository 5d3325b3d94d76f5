package main

import (
	"context"
	"time"
)

type SessionSweeper interface {
	Sweep(ctx context.Context, idle time.Duration) int
	Shutdown(ctx context.Context) error
}
