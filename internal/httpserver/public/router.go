package public

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rexialabs/local_model_gateway/internal/app"
)

// Register wires up the OpenAI-compatible public API routes.
func Register(app *fiber.App, container *app.Container) {
	group := app.Group("/v1", apiKeyAuth(container.Config.Auth))
	handler := &openAIHandler{container: container}
	group.Get("/models", handler.listModels)
	group.Post("/chat/completions", handler.chatCompletions)
}
