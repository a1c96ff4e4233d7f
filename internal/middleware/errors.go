package middleware

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/bilgisen/synchronicity/internal/apperr"
)

// StatusOf returns the HTTP status reported for err.
func StatusOf(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return apperr.Status(err)
}

// ErrorHandler renders every handler error as {"error": message}.
// Internal failures are reported without their details.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := StatusOf(err)

	msg := err.Error()
	if code == fiber.StatusInternalServerError {
		msg = http.StatusText(code)
	}

	return c.Status(code).JSON(fiber.Map{
		"error": msg,
	})
}

// NotFound answers requests that matched no route.
func NotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "Endpoint not found",
	})
}
