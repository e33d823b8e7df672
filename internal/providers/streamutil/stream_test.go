package streamutil

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rexialabs/local_model_gateway/internal/models"
)

func TestForward_DeliversAndCloses(t *testing.T) {
	chunks, closeFn := Forward(context.Background(), nil, func(ctx context.Context, yield YieldFunc) {
		yield(models.ChatChunk{Content: "one"})
		yield(models.ChatChunk{Content: "two"})
	})
	defer closeFn()

	var got []string
	for chunk := range chunks {
		got = append(got, chunk.Content)
	}
	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Fatalf("unexpected chunks %v", got)
	}
}

func TestForward_CloserRunsExactlyOnce(t *testing.T) {
	var calls atomic.Int32
	closer := func() error {
		calls.Add(1)
		return nil
	}

	chunks, closeFn := Forward(context.Background(), closer, func(ctx context.Context, yield YieldFunc) {})
	for range chunks {
	}
	_ = closeFn()
	_ = closeFn()

	if n := calls.Load(); n != 1 {
		t.Fatalf("closer ran %d times, want 1", n)
	}
}

func TestForward_CancelUnblocksYield(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	yielded := make(chan bool, 1)
	chunks, closeFn := Forward(ctx, nil, func(ctx context.Context, yield YieldFunc) {
		// Nobody reads the channel; the send must unblock on cancel.
		yielded <- yield(models.ChatChunk{Content: "stuck"})
	})
	defer closeFn()
	_ = chunks

	cancel()
	select {
	case ok := <-yielded:
		if ok {
			t.Fatal("yield must report false after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("yield stayed blocked after cancellation")
	}
}
