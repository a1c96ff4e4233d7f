package api

import (
	"bytes"
	"encoding/csv"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bilgisen/synchronicity/internal/images"
	"github.com/bilgisen/synchronicity/internal/middleware"
	"github.com/bilgisen/synchronicity/internal/models"
	"github.com/bilgisen/synchronicity/internal/webhook"
)

// Sync handles POST /api/sync. A failed sync answers 503 and leaves the
// published articles and cache as they were.
func (h *Handlers) Sync(c *fiber.Ctx) error {
	result, err := h.sync.Run(c.UserContext())
	if err != nil {
		h.log.Error().Err(err).Msg("Manual sync failed")
		return err
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"count":        result.Articles,
		"dropped":      result.Dropped,
		"imagesQueued": result.ImagesQueued,
		"duration":     result.Duration,
		"lastSync":     h.sync.Status().LastRun,
	})
}

// Webhook handles POST /api/webhook/substack. The signature has already been
// checked by middleware.NewSignatureAuth.
func (h *Handlers) Webhook(c *fiber.Ctx) error {
	payload := middleware.Validated[webhook.Payload](c)

	ctx, cancel := h.requestContext(c)
	defer cancel()

	article, err := h.sync.RunSingle(ctx, payload.ArticleURL)
	if err != nil {
		h.log.Warn().Err(err).Str("url", payload.ArticleURL).Msg("Webhook sync failed")
		return err
	}

	h.log.Info().Str("article_id", article.ID).Str("event", payload.Event).Msg("Webhook processed")
	return c.JSON(fiber.Map{
		"success": true,
		"article": article,
	})
}

// OptimizeImages handles POST /api/admin/optimize-images
func (h *Handlers) OptimizeImages(c *fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	queued, err := h.images.Backfill(ctx)
	if errors.Is(err, images.ErrDisabled) {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"queued":  queued,
	})
}

type exportQuery struct {
	Format string `query:"format" validate:"omitempty,oneof=json csv"`
}

var exportColumns = []string{"title", "subtitle", "url", "hashtags", "views", "likes", "publishedDate"}

// Export handles GET /api/export
func (h *Handlers) Export(c *fiber.Ctx) error {
	q := middleware.Validated[exportQuery](c)

	ctx, cancel := h.requestContext(c)
	defer cancel()

	articles, err := h.store.All(ctx)
	if err != nil {
		return err
	}

	if q.Format != "csv" {
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="articles.json"`)
		return c.JSON(articles)
	}

	body, err := exportCSV(articles)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="articles.csv"`)
	return c.Send(body)
}

func exportCSV(articles []models.Article) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(exportColumns); err != nil {
		return nil, err
	}
	for _, a := range articles {
		record := []string{
			a.Title,
			a.Subtitle,
			a.SubstackURL,
			strings.Join(a.Hashtags, ", "),
			strconv.FormatInt(a.Views, 10),
			strconv.FormatInt(a.Likes, 10),
			a.PublishedDate.UTC().Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

// HealthCheck handles GET /api/health. Storage is required; the cache is
// advisory and only reported.
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	status := fiber.StatusOK
	body := fiber.Map{
		"status":   "healthy",
		"storage":  "connected",
		"cache":    "connected",
		"lastSync": h.sync.Status(),
		"time":     time.Now().UTC().Format(time.RFC3339),
	}

	if err := h.store.Ping(ctx); err != nil {
		h.log.Error().Err(err).Msg("Storage health check failed")
		status = fiber.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["storage"] = "disconnected"
	}
	if err := h.cache.Ping(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Cache health check failed")
		body["cache"] = "disconnected"
	}

	return c.Status(status).JSON(body)
}

// Root handles GET /
func (h *Handlers) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"name":    serviceName,
		"version": serviceVersion,
		"endpoints": []string{
			"GET /api/articles",
			"GET /api/articles/:id",
			"POST /api/articles/:id/like",
			"GET /api/articles/:id/analytics",
			"PUT /api/articles/:id/hashtags",
			"GET /api/hashtags",
			"GET /api/analytics/hashtags",
			"GET /api/analytics/dashboard",
			"GET /api/search",
			"GET /api/export",
			"POST /api/sync",
			"POST /api/webhook/substack",
			"POST /api/admin/optimize-images",
			"GET /api/html-content/:tag",
			"GET /api/markdown-content/:tag",
			"GET /api/hashtag-intro/:tag",
			"POST /api/embed/fetch",
			"POST /api/embed/validate",
			"GET /api/health",
			"GET /metrics",
		},
	})
}
