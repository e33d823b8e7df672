package providers

import (
	"context"

	"github.com/rexialabs/local_model_gateway/internal/models"
)

// ChatProvider performs a blocking, single-shot chat completion.
type ChatProvider interface {
	Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error)
}

// ChatStreamProvider starts a streaming completion. The returned channel is
// closed when the backend finishes; the cancel func aborts the upstream call
// and is safe to invoke more than once.
type ChatStreamProvider interface {
	ChatStream(ctx context.Context, req models.ChatRequest) (<-chan models.ChatChunk, func() error, error)
}

// ModelLister reports the models the backend currently serves.
type ModelLister interface {
	Models(ctx context.Context) ([]models.Model, error)
}

// HealthChecker is a lightweight backend readiness probe.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
