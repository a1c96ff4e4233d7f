package feed

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bilgisen/synchronicity/internal/cache"
	"github.com/bilgisen/synchronicity/internal/logger"
	"github.com/bilgisen/synchronicity/internal/models"
	"github.com/bilgisen/synchronicity/internal/storage"
)

// Enricher schedules background enrichment for freshly synced articles and
// reports how many jobs it queued.
type Enricher interface {
	Schedule(articles []models.Article) int
}

// SyncResult is returned to whoever triggered a sync.
type SyncResult struct {
	Articles     int    `json:"articles"`
	Dropped      int    `json:"dropped"`
	ImagesQueued int    `json:"imagesQueued"`
	Duration     string `json:"duration"`
}

// SyncService publishes orchestrator output: it writes the store, clears the
// cache and queues image work. A failed sync leaves store and cache untouched.
type SyncService struct {
	orchestrator *Orchestrator
	store        storage.Store
	cache        cache.Cache
	enricher     Enricher
	retention    storage.RetentionPolicy
	log          zerolog.Logger
}

// NewSyncService wires the publication path. enricher may be nil.
func NewSyncService(o *Orchestrator, store storage.Store, c cache.Cache, enricher Enricher, retention storage.RetentionPolicy) *SyncService {
	return &SyncService{
		orchestrator: o,
		store:        store,
		cache:        c,
		enricher:     enricher,
		retention:    retention,
		log:          logger.Component("sync"),
	}
}

// Run performs a full sync and replaces the stored article set.
func (s *SyncService) Run(ctx context.Context) (SyncResult, error) {
	start := time.Now()

	articles, err := s.orchestrator.Sync(ctx)
	if err != nil {
		return SyncResult{}, err
	}

	if err := s.store.ReplaceAll(ctx, articles, s.retention); err != nil {
		s.log.Error().Err(err).Msg("Failed to publish synced articles")
		return SyncResult{}, err
	}

	s.invalidate(ctx)

	return SyncResult{
		Articles:     len(articles),
		Dropped:      s.orchestrator.LastSync().Dropped,
		ImagesQueued: s.schedule(articles),
		Duration:     time.Since(start).String(),
	}, nil
}

// RunSingle re-syncs one article, keeping its counters.
func (s *SyncService) RunSingle(ctx context.Context, articleURL string) (*models.Article, error) {
	article, err := s.orchestrator.SyncSingle(ctx, articleURL)
	if err != nil {
		return nil, err
	}

	if err := s.store.Upsert(ctx, *article); err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.schedule([]models.Article{*article})

	return s.store.Get(ctx, article.ID)
}

// Start runs a sync every interval until ctx is done. A non-positive interval disables it.
func (s *SyncService) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if res, err := s.Run(ctx); err != nil {
				s.log.Error().Err(err).Msg("Scheduled sync failed")
			} else {
				s.log.Info().Int("articles", res.Articles).Msg("Scheduled sync finished")
			}
		}
	}
}

// Status reports the most recent sync pass.
func (s *SyncService) Status() SyncStatus {
	return s.orchestrator.LastSync()
}

func (s *SyncService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAll(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to invalidate cache after sync")
	}
}

func (s *SyncService) schedule(articles []models.Article) int {
	if s.enricher == nil {
		return 0
	}
	return s.enricher.Schedule(articles)
}
