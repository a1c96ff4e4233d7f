package storage

import (
	"context"
	"time"

	"github.com/bilgisen/synchronicity/internal/models"
)

// RetentionPolicy decides what happens to stored articles a new sync no longer lists.
type RetentionPolicy string

const (
	// RetainMissing keeps articles that dropped out of the feed.
	RetainMissing RetentionPolicy = "keep"
	// PruneMissing deletes them.
	PruneMissing RetentionPolicy = "prune"
)

// Store is the source of truth for articles and analytics events.
// Upserts never reset views, likes or optimized images of an existing id.
type Store interface {
	ReplaceAll(ctx context.Context, articles []models.Article, policy RetentionPolicy) error
	Upsert(ctx context.Context, article models.Article) error
	Get(ctx context.Context, id string) (*models.Article, error)
	Query(ctx context.Context, q models.ArticleQuery) (models.ArticlePage, error)
	All(ctx context.Context) ([]models.Article, error)
	Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error)

	IncrementViews(ctx context.Context, id string) error
	IncrementLikes(ctx context.Context, id string) error
	SetHashtags(ctx context.Context, id string, hashtags []string) error
	SetOptimizedImages(ctx context.Context, id string, images map[string]string) error

	AppendEvent(ctx context.Context, event models.AnalyticsEvent) error
	Events(ctx context.Context, articleID string, since time.Time) ([]models.AnalyticsEvent, error)

	Ping(ctx context.Context) error
	Close() error
}
