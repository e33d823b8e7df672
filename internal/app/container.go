package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rexialabs/local_model_gateway/internal/adapters/ollama"
	"github.com/rexialabs/local_model_gateway/internal/config"
	"github.com/rexialabs/local_model_gateway/internal/observability"
	"github.com/rexialabs/local_model_gateway/internal/providers"
	"github.com/rexialabs/local_model_gateway/internal/translate"
)

// Container holds the immutable per-process dependencies. It is built once
// at startup and passed explicitly; request handling keeps no other shared
// state.
type Container struct {
	Config *config.Config

	Chat       providers.ChatProvider
	ChatStream providers.ChatStreamProvider
	Models     providers.ModelLister
	Health     providers.HealthChecker

	Normalizer    *translate.Normalizer
	Observability *observability.Provider
}

func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	obs, err := observability.Setup(ctx, cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("setup observability: %w", err)
	}

	adapter := ollama.New(ollama.Options{BaseURL: cfg.Ollama.BaseURL})

	return &Container{
		Config:        cfg,
		Chat:          adapter,
		ChatStream:    adapter,
		Models:        adapter,
		Health:        adapter,
		Normalizer:    translate.NewNormalizer(http.DefaultClient),
		Observability: obs,
	}, nil
}

// ParamLimits exposes the fixed backend capability constants the parameter
// mapper needs.
func (c *Container) ParamLimits() translate.Limits {
	return translate.Limits{
		NumCtx:       c.Config.Ollama.NumCtx,
		VisionNumCtx: c.Config.Ollama.VisionNumCtx,
		VisionNumGPU: c.Config.Ollama.VisionNumGPU,
	}
}
