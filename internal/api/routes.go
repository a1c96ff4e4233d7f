package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bilgisen/synchronicity/internal/content"
	"github.com/bilgisen/synchronicity/internal/middleware"
	"github.com/bilgisen/synchronicity/internal/webhook"
)

// NewApp creates the Fiber app with the global middleware and all routes.
func NewApp(handlers *Handlers, timeout time.Duration) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      serviceName,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		IdleTimeout:  120 * time.Second,
		ErrorHandler: middleware.ErrorHandler,
		// request values outlive the handler in cache keys and view tracking
		Immutable: true,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(middleware.RequestLogger())

	SetupRoutes(app, handlers)
	return app
}

// SetupRoutes configures all the routes for the application
func SetupRoutes(app *fiber.App, handlers *Handlers) {
	v := handlers.validator

	app.Get("/", handlers.Root)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	api.Get("/health", handlers.HealthCheck)

	// Articles
	articles := api.Group("/articles")
	{
		articles.Get("", middleware.ValidateQuery[listQuery](v), handlers.ListArticles)
		articles.Get("/:id", handlers.GetArticle)
		articles.Post("/:id/like", handlers.LikeArticle)
		articles.Get("/:id/analytics", middleware.ValidateQuery[analyticsQuery](v), handlers.ArticleAnalytics)
		articles.Put("/:id/hashtags", middleware.ValidateBody[hashtagsRequest](v), handlers.SetHashtags)
	}

	api.Get("/hashtags", handlers.Hashtags)
	api.Get("/search", middleware.ValidateQuery[searchQuery](v), handlers.Search)
	api.Get("/export", middleware.ValidateQuery[exportQuery](v), handlers.Export)

	// Analytics
	stats := api.Group("/analytics")
	{
		stats.Get("/hashtags", handlers.HashtagPerformance)
		stats.Get("/dashboard", handlers.Dashboard)
	}

	// Sync
	api.Post("/sync", handlers.Sync)
	api.Post("/webhook/substack",
		middleware.NewSignatureAuth(middleware.SignatureConfig{Secret: handlers.webhookSecret}),
		middleware.ValidateBody[webhook.Payload](v),
		handlers.Webhook,
	)

	// Admin
	admin := api.Group("/admin")
	{
		admin.Post("/optimize-images", handlers.OptimizeImages)
	}

	// Topic content
	api.Get("/html-content/:tag", handlers.TopicPage(content.KindHTML))
	api.Get("/markdown-content/:tag", handlers.TopicPage(content.KindMarkdown))
	api.Get("/hashtag-intro/:tag", handlers.TopicPage(content.KindIntro))

	// Embeds
	embeds := api.Group("/embed")
	{
		embeds.Post("/fetch", middleware.ValidateBody[embedFetchRequest](v), handlers.EmbedFetch)
		embeds.Post("/validate", middleware.ValidateBody[embedValidateRequest](v), handlers.EmbedValidate)
	}

	app.Use(middleware.NotFound)
}
