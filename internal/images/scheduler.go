package images

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/bilgisen/synchronicity/internal/apperr"
	"github.com/bilgisen/synchronicity/internal/cache"
	"github.com/bilgisen/synchronicity/internal/jobs"
	"github.com/bilgisen/synchronicity/internal/logger"
	"github.com/bilgisen/synchronicity/internal/models"
	"github.com/bilgisen/synchronicity/internal/storage"
)

const jobKind = "image"

// Scheduler queues optimization jobs and writes their results to the store.
type Scheduler struct {
	optimizer *Optimizer
	runner    *jobs.Runner
	store     storage.Store
	cache     cache.Cache
	log       zerolog.Logger
}

func NewScheduler(optimizer *Optimizer, runner *jobs.Runner, store storage.Store, c cache.Cache) *Scheduler {
	return &Scheduler{
		optimizer: optimizer,
		runner:    runner,
		store:     store,
		cache:     c,
		log:       logger.Component("images"),
	}
}

// NeedsOptimization reports whether any tier is missing from the article's variants.
func NeedsOptimization(a models.Article) bool {
	for _, tier := range Tiers {
		if a.OptimizedImages[tier.Name] == "" {
			return true
		}
	}
	return false
}

// Schedule queues a job per article lacking variants and returns how many were queued.
func (s *Scheduler) Schedule(articles []models.Article) int {
	if !s.optimizer.Enabled() {
		return 0
	}

	queued := 0
	for _, a := range articles {
		if !NeedsOptimization(a) {
			continue
		}
		id := a.ID
		ok := s.runner.Enqueue(jobs.Job{
			Kind: jobKind,
			Key:  jobKind + ":" + id,
			Run: func(ctx context.Context) error {
				return s.process(ctx, id)
			},
			OnFailure: func(ctx context.Context, err error) {
				s.degrade(ctx, id)
			},
		})
		if ok {
			queued++
		}
	}
	return queued
}

// Backfill schedules every stored article that is missing variants.
func (s *Scheduler) Backfill(ctx context.Context) (int, error) {
	if !s.optimizer.Enabled() {
		return 0, ErrDisabled
	}
	articles, err := s.store.All(ctx)
	if err != nil {
		return 0, err
	}
	return s.Schedule(articles), nil
}

func (s *Scheduler) process(ctx context.Context, id string) error {
	article, err := s.store.Get(ctx, id)
	if err != nil {
		// the article may have been pruned since the job was queued
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		return err
	}
	if !NeedsOptimization(*article) {
		return nil
	}

	variants, err := s.optimizer.Optimize(ctx, article.ImageURL, id)
	if err != nil {
		return err
	}
	return s.save(ctx, id, variants)
}

// degrade records the original image as the only variant after the last retry failed.
func (s *Scheduler) degrade(ctx context.Context, id string) {
	article, err := s.store.Get(ctx, id)
	if err != nil {
		return
	}
	if err := s.save(ctx, id, Degraded(article.ImageURL)); err != nil {
		s.log.Warn().Err(err).Str("article_id", id).Msg("Failed to store degraded image mapping")
	}
}

func (s *Scheduler) save(ctx context.Context, id string, variants map[string]string) error {
	if err := s.store.SetOptimizedImages(ctx, id, variants); err != nil {
		return err
	}
	cache.InvalidateQuietly(ctx, s.cache, cache.NamespaceArticles+":*", cache.NamespaceSearch+":*", cache.AnalyticsKey("dashboard"))
	return nil
}
