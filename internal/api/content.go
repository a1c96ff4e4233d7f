package api

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/bilgisen/synchronicity/internal/apperr"
	"github.com/bilgisen/synchronicity/internal/content"
	"github.com/bilgisen/synchronicity/internal/embed"
	"github.com/bilgisen/synchronicity/internal/middleware"
)

// TopicPage serves one kind of per-topic content. A missing file answers 200
// with exists=false.
func (h *Handlers) TopicPage(kind content.Kind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := h.requestContext(c)
		defer cancel()

		page, err := h.content.Page(ctx, kind, c.Params("tag"))
		if err != nil {
			return err
		}
		return c.JSON(page)
	}
}

type embedFetchRequest struct {
	URL     string            `json:"url" validate:"required,url"`
	Options map[string]string `json:"options"`
}

// EmbedFetch handles POST /api/embed/fetch. Resolution failures still answer
// 200 with the fallback link markup.
func (h *Handlers) EmbedFetch(c *fiber.Ctx) error {
	req := middleware.Validated[embedFetchRequest](c)

	provider, ok := embed.Validate(req.URL)
	if !ok {
		return fmt.Errorf("%w: unsupported embed url %q", apperr.ErrValidation, req.URL)
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	html, resolved := h.embeds.Render(ctx, req.URL, req.Options)
	return c.JSON(fiber.Map{
		"success":  resolved,
		"url":      req.URL,
		"provider": provider,
		"html":     html,
	})
}

type embedValidateRequest struct {
	URL     string `json:"url" validate:"required_without=Content"`
	Content string `json:"content" validate:"required_without=URL"`
}

// EmbedValidate handles POST /api/embed/validate. It classifies a single URL
// and lists the directives found in content.
func (h *Handlers) EmbedValidate(c *fiber.Ctx) error {
	req := middleware.Validated[embedValidateRequest](c)

	resp := fiber.Map{}
	if req.URL != "" {
		provider, ok := embed.Validate(req.URL)
		resp["url"] = req.URL
		resp["valid"] = ok
		resp["provider"] = provider
	}
	if req.Content != "" {
		directives := embed.Detect(req.Content)
		if directives == nil {
			directives = []embed.Directive{}
		}
		resp["directives"] = directives
	}
	return c.JSON(resp)
}
