package middleware

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/bilgisen/synchronicity/internal/apperr"
)

const validatedKey = "validated"

// Validator is a struct that holds the validator instance
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate checks s against its validate tags. Failures wrap apperr.ErrValidation
// and name every offending field.
func (v *Validator) Validate(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	sort.Strings(fields)
	return fmt.Errorf("%w: invalid %s", apperr.ErrValidation, strings.Join(fields, ", "))
}

// ValidateBody parses the request body into a fresh T, validates it and stores
// it for the handler. Fetch it with Validated.
func ValidateBody[T any](v *Validator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := new(T)
		if err := c.BodyParser(req); err != nil {
			return fmt.Errorf("%w: malformed request body: %v", apperr.ErrValidation, err)
		}
		if err := v.Validate(req); err != nil {
			return err
		}

		c.Locals(validatedKey, req)
		return c.Next()
	}
}

// ValidateQuery parses query parameters into a fresh T and validates them.
func ValidateQuery[T any](v *Validator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := new(T)
		if err := c.QueryParser(req); err != nil {
			return fmt.Errorf("%w: malformed query parameters: %v", apperr.ErrValidation, err)
		}
		if err := v.Validate(req); err != nil {
			return err
		}

		c.Locals(validatedKey, req)
		return c.Next()
	}
}

// Validated returns the request stored by ValidateBody or ValidateQuery.
func Validated[T any](c *fiber.Ctx) *T {
	if req, ok := c.Locals(validatedKey).(*T); ok {
		return req
	}
	return new(T)
}
