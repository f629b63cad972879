package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/nodeledger/nodeledger/internal/config"
	"github.com/nodeledger/nodeledger/internal/logging"
	"github.com/nodeledger/nodeledger/internal/models"
)

// MinAPIKeyLength is the minimum required length for API keys
const MinAPIKeyLength = 32

// ValidateAPIKey checks if an API key meets the length requirement
func ValidateAPIKey(key string) bool {
	return len(key) >= MinAPIKeyLength && strings.TrimSpace(key) != ""
}

// APIKeyAuth checks X-API-Key or Authorization (with or without Bearer)
// against the configured keys. Disabled auth lets everything through.
func APIKeyAuth(logger *logging.Logger, cfg config.AuthConfig) fiber.Handler {
	if !cfg.Enabled {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	keys := make([][]byte, 0, len(cfg.APIKeys))
	for _, key := range cfg.APIKeys {
		if !ValidateAPIKey(key) {
			logger.Warn("Ignoring API key below minimum length",
				"key_prefix", maskAPIKey(key),
				"min_required", MinAPIKeyLength)
			continue
		}
		keys = append(keys, []byte(key))
	}
	if len(keys) == 0 {
		logger.Error("No valid API keys configured, every request will be rejected",
			"total_keys", len(cfg.APIKeys))
	}

	return func(c *fiber.Ctx) error {
		apiKey := c.Get("X-API-Key")
		if apiKey == "" {
			auth := c.Get("Authorization")
			if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
				auth = after
			}
			apiKey = auth
		}

		if apiKey == "" {
			return unauthorized(c, "API key is required. Provide it via X-API-Key header or Authorization header.")
		}
		if !matchKey(keys, apiKey) {
			logger.Warn("Invalid API key",
				"path", c.Path(),
				"ip", c.IP(),
				"api_key_prefix", maskAPIKey(apiKey))
			return unauthorized(c, "Invalid API key.")
		}
		return c.Next()
	}
}

func matchKey(keys [][]byte, candidate string) bool {
	found := 0
	for _, k := range keys {
		found |= subtle.ConstantTimeCompare(k, []byte(candidate))
	}
	return found == 1
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    "UNAUTHORIZED",
			Message: message,
			Path:    c.Path(),
		},
	})
}

// maskAPIKey masks API key for logging (show only first 4 chars)
func maskAPIKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
