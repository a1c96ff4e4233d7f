package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bilgisen/synchronicity/internal/logger"
	"github.com/bilgisen/synchronicity/internal/webhook"
)

// SignatureConfig defines the config for the webhook signature middleware
type SignatureConfig struct {
	// Next defines a function to skip middleware.
	// Optional. Default: nil
	Next func(c *fiber.Ctx) bool

	// Secret is the shared HMAC secret. An empty secret rejects every request.
	Secret string

	// Header carries the hex signature of the raw body.
	// Optional. Default: "x-substack-signature"
	Header string

	// ErrorHandler is executed for a missing or invalid signature.
	// Optional. Default: 401 with a JSON error
	ErrorHandler fiber.ErrorHandler
}

// SignatureConfigDefault is the default config
var SignatureConfigDefault = SignatureConfig{
	Header: webhook.SignatureHeader,
	ErrorHandler: func(c *fiber.Ctx, err error) error {
		logger.Get().Warn().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Str("ip", c.IP()).
			Err(err).
			Msg("Webhook signature rejected")

		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid signature",
		})
	},
}

// NewSignatureAuth verifies the HMAC-SHA256 signature of the raw request body
// before any handler sees it.
func NewSignatureAuth(config SignatureConfig) fiber.Handler {
	cfg := config
	if cfg.Header == "" {
		cfg.Header = SignatureConfigDefault.Header
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = SignatureConfigDefault.ErrorHandler
	}

	return func(c *fiber.Ctx) error {
		if cfg.Next != nil && cfg.Next(c) {
			return c.Next()
		}

		if err := webhook.Verify(cfg.Secret, c.Body(), c.Get(cfg.Header)); err != nil {
			return cfg.ErrorHandler(c, err)
		}
		return c.Next()
	}
}
