package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bilgisen/synchronicity/internal/analytics"
	"github.com/bilgisen/synchronicity/internal/api"
	"github.com/bilgisen/synchronicity/internal/cache"
	"github.com/bilgisen/synchronicity/internal/config"
	"github.com/bilgisen/synchronicity/internal/content"
	"github.com/bilgisen/synchronicity/internal/embed"
	"github.com/bilgisen/synchronicity/internal/feed"
	"github.com/bilgisen/synchronicity/internal/images"
	"github.com/bilgisen/synchronicity/internal/jobs"
	"github.com/bilgisen/synchronicity/internal/logger"
	"github.com/bilgisen/synchronicity/internal/storage"
)

// feedRetries is how many times a failed feed request is retried before the sync fails.
const feedRetries = 2

func main() {
	// Load and validate configuration
	cfg := config.Load()

	// Initialize logger
	if err := logger.Init(logger.Config{
		Level:  cfg.LogLevel,
		Output: cfg.LogFile,
		Pretty: !cfg.IsProduction(),
	}); err != nil {
		panic(err)
	}

	log := logger.Get()
	log.Info().Str("source", cfg.SubstackURL).Msg("Starting application...")

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// Cache: Redis when configured, otherwise in-process
	var c cache.Cache = cache.NewMemoryCache()
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Redis cache")
		}
		c = redisCache
	}
	defer func() {
		log.Info().Msg("Closing cache...")
		if err := c.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing cache")
		}
	}()

	// Store: Postgres when configured, otherwise memory with a file snapshot
	var store storage.Store
	if cfg.DatabaseURL != "" {
		pg, err := storage.NewPostgresStore(rootCtx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Postgres store")
		}
		store = pg
	} else {
		mem, err := storage.NewMemoryStore(cfg.StoragePath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize file store")
		}
		store = mem
	}
	defer func() {
		log.Info().Msg("Closing store...")
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing store")
		}
	}()

	// Background jobs and image optimization
	runner := jobs.NewRunner(jobs.Config{
		Workers:    cfg.JobWorkers,
		MaxRetries: cfg.JobMaxRetries,
	})
	runner.Start()

	var uploader images.Uploader
	if cfg.R2Enabled() {
		s3Uploader, err := images.NewS3Uploader(rootCtx, images.R2Config{
			Endpoint:  cfg.R2Endpoint,
			AccessKey: cfg.R2AccessKey,
			SecretKey: cfg.R2SecretKey,
			Bucket:    cfg.R2Bucket,
			PublicURL: cfg.R2PublicURL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize object storage")
		}
		uploader = s3Uploader
	} else {
		log.Warn().Msg("R2 credentials not set, image optimization disabled")
	}
	scheduler := images.NewScheduler(images.NewOptimizer(uploader, cfg.HTTPTimeout), runner, store, c)

	// Sync pipeline
	orchestrator := feed.NewOrchestrator(
		feed.NewFetcher(cfg.HTTPTimeout, feedRetries),
		feed.NewExtractor(),
		cfg.SubstackURL,
		cfg.SyncConcurrency,
		2*cfg.HTTPTimeout,
	)
	syncService := feed.NewSyncService(orchestrator, store, c, scheduler, storage.RetentionPolicy(cfg.RetentionPolicy))

	resolver := embed.NewResolver(cfg.OEmbedEndpoint, cfg.OEmbedRate, cfg.HTTPTimeout)

	handlers := api.NewHandlers(api.Deps{
		Store:         store,
		Cache:         c,
		Tracker:       analytics.NewTracker(store, c, cfg.AnalyticsTTL, cfg.ListingCacheTTL),
		Sync:          syncService,
		Images:        scheduler,
		Content:       content.NewService(cfg.ContentPath, cfg.ImageBasePath, resolver),
		Embeds:        resolver,
		ListingTTL:    cfg.ListingCacheTTL,
		Timeout:       cfg.HTTPTimeout,
		WebhookSecret: cfg.WebhookSecret,
	})
	if cfg.WebhookSecret == "" {
		log.Warn().Msg("WEBHOOK_SECRET not set, webhook requests will be rejected")
	}

	app := api.NewApp(handlers, cfg.HTTPTimeout)

	if cfg.SyncOnStart {
		go func() {
			res, err := syncService.Run(rootCtx)
			if err != nil {
				log.Error().Err(err).Msg("Initial sync failed")
				return
			}
			log.Info().
				Int("articles", res.Articles).
				Int("dropped", res.Dropped).
				Int("images_queued", res.ImagesQueued).
				Msg("Initial sync finished")
		}()
	}
	go syncService.Start(rootCtx, cfg.SyncInterval)

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	stop()

	// Create a deadline for graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := runner.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("Background jobs did not finish before shutdown")
	}

	log.Info().Msg("Server exited properly")
}
