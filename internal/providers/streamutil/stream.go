package streamutil

import (
	"context"
	"sync"

	"github.com/rexialabs/local_model_gateway/internal/models"
)

// YieldFunc receives chat chunks from an adapter. Returning false stops
// further forwarding.
type YieldFunc func(models.ChatChunk) bool

// Forward wraps adapter-specific streaming logic with a shared channel
// lifecycle: the channel is closed when forward returns, the closer runs
// exactly once, and yields observe context cancellation so a gone client
// does not leave the goroutine parked on a send.
func Forward(ctx context.Context, closer func() error, forward func(ctx context.Context, yield YieldFunc)) (<-chan models.ChatChunk, func() error) {
	chunks := make(chan models.ChatChunk)
	var once sync.Once
	callCloser := func() {
		if closer == nil {
			return
		}
		once.Do(func() {
			_ = closer()
		})
	}

	go func() {
		defer close(chunks)
		defer callCloser()

		forward(ctx, func(chunk models.ChatChunk) bool {
			select {
			case <-ctx.Done():
				return false
			case chunks <- chunk:
				return true
			}
		})
	}()

	return chunks, func() error {
		callCloser()
		return nil
	}
}
