package public

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/rexialabs/local_model_gateway/internal/config"
	"github.com/rexialabs/local_model_gateway/internal/httpserver/httputil"
)

// apiKeyAuth compares the bearer token against the process-wide shared
// secret. Error messages are part of the public contract and mirror the
// deployed API.
func apiKeyAuth(cfg config.AuthConfig) fiber.Handler {
	secret := []byte(cfg.APIKey)
	return func(c *fiber.Ctx) error {
		raw := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		if raw == "" {
			return httputil.WriteError(c, fiber.StatusUnauthorized, "No API key provided")
		}

		parts := strings.SplitN(raw, " ", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
			return httputil.WriteError(c, fiber.StatusUnauthorized, "Invalid Authorization header format")
		}

		token := strings.TrimSpace(parts[1])
		if subtle.ConstantTimeCompare([]byte(token), secret) != 1 {
			return httputil.WriteError(c, fiber.StatusUnauthorized, "Invalid API key")
		}

		return c.Next()
	}
}
