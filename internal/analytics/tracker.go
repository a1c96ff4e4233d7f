// Package analytics records view and like events and computes article,
// hashtag and dashboard aggregates.
package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bilgisen/synchronicity/internal/apperr"
	"github.com/bilgisen/synchronicity/internal/cache"
	"github.com/bilgisen/synchronicity/internal/logger"
	"github.com/bilgisen/synchronicity/internal/models"
	"github.com/bilgisen/synchronicity/internal/storage"
)

// AnonymousUser is recorded for likes that carry no user identity.
const AnonymousUser = "anonymous"

const (
	topHashtagsLimit    = 5
	recentArticlesLimit = 10
)

// Tracker records events and serves cached aggregates.
type Tracker struct {
	store        storage.Store
	cache        cache.Cache
	analyticsTTL time.Duration
	dashboardTTL time.Duration

	now   func() time.Time
	newID func() string
	log   zerolog.Logger
}

// NewTracker creates a tracker. Aggregates are cached for analyticsTTL,
// the dashboard for dashboardTTL.
func NewTracker(store storage.Store, c cache.Cache, analyticsTTL, dashboardTTL time.Duration) *Tracker {
	if analyticsTTL <= 0 {
		analyticsTTL = cache.DefaultAnalyticsTTL
	}
	if dashboardTTL <= 0 {
		dashboardTTL = cache.DefaultListingTTL
	}
	return &Tracker{
		store:        store,
		cache:        c,
		analyticsTTL: analyticsTTL,
		dashboardTTL: dashboardTTL,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
		log:          logger.Component("analytics"),
	}
}

// TrackView increments the view counter and appends a view event. Only a
// missing article is reported; other failures are logged.
func (t *Tracker) TrackView(ctx context.Context, articleID string, metadata map[string]string) error {
	return t.track(ctx, articleID, models.EventView, metadata, t.store.IncrementViews)
}

// TrackLike increments the like counter and appends a like event for userID.
func (t *Tracker) TrackLike(ctx context.Context, articleID, userID string) error {
	if userID == "" {
		userID = AnonymousUser
	}
	return t.track(ctx, articleID, models.EventLike, map[string]string{"userId": userID}, t.store.IncrementLikes)
}

func (t *Tracker) track(ctx context.Context, articleID string, kind models.EventType, metadata map[string]string,
	increment func(context.Context, string) error) error {
	if err := increment(ctx, articleID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		t.log.Warn().Err(err).Str("article_id", articleID).Str("event", string(kind)).Msg("Failed to increment counter")
	}

	event := models.AnalyticsEvent{
		ID:        t.newID(),
		ArticleID: articleID,
		EventType: kind,
		Metadata:  metadata,
		Timestamp: t.now(),
	}
	if err := t.store.AppendEvent(ctx, event); err != nil {
		t.log.Warn().Err(err).Str("article_id", articleID).Str("event", string(kind)).Msg("Failed to record event")
	}
	return nil
}

// ArticleAnalytics is the per-day view series of one article.
type ArticleAnalytics struct {
	ArticleID string              `json:"articleId"`
	TimeRange string              `json:"timeRange"`
	Views     int64               `json:"views"`
	Likes     int64               `json:"likes"`
	Daily     []models.DailyCount `json:"daily"`
}

// GetArticleAnalytics buckets view events per calendar day (UTC) over the range.
func (t *Tracker) GetArticleAnalytics(ctx context.Context, articleID, timeRange string) (ArticleAnalytics, bool, error) {
	timeRange, days := ParseRange(timeRange)
	key := cache.AnalyticsKey(articleID, timeRange)

	return cache.Fetch(ctx, t.cache, key, t.analyticsTTL, func(ctx context.Context) (ArticleAnalytics, error) {
		article, err := t.store.Get(ctx, articleID)
		if err != nil {
			return ArticleAnalytics{}, err
		}

		now := t.now()
		since := startOfDay(now).AddDate(0, 0, -(days - 1))
		events, err := t.store.Events(ctx, articleID, since)
		if err != nil {
			return ArticleAnalytics{}, err
		}

		return ArticleAnalytics{
			ArticleID: articleID,
			TimeRange: timeRange,
			Views:     article.Views,
			Likes:     article.Likes,
			Daily:     DailyViews(events, since, days),
		}, nil
	})
}

// GetHashtagPerformance aggregates counters per hashtag across all articles.
func (t *Tracker) GetHashtagPerformance(ctx context.Context) ([]models.HashtagStats, bool, error) {
	key := cache.AnalyticsKey("hashtags", "all")
	return cache.Fetch(ctx, t.cache, key, t.analyticsTTL, func(ctx context.Context) ([]models.HashtagStats, error) {
		articles, err := t.store.All(ctx)
		if err != nil {
			return nil, err
		}
		return HashtagPerformance(articles), nil
	})
}

// Dashboard returns totals, top hashtags and the most recent articles.
func (t *Tracker) Dashboard(ctx context.Context) (models.Dashboard, bool, error) {
	key := cache.AnalyticsKey("dashboard")
	return cache.Fetch(ctx, t.cache, key, t.dashboardTTL, func(ctx context.Context) (models.Dashboard, error) {
		articles, err := t.store.All(ctx)
		if err != nil {
			return models.Dashboard{}, err
		}
		return BuildDashboard(articles, t.now()), nil
	})
}

// Hashtags returns the sorted distinct hashtags of all articles.
func (t *Tracker) Hashtags(ctx context.Context) ([]string, bool, error) {
	return cache.Fetch(ctx, t.cache, cache.HashtagsKey, t.dashboardTTL, func(ctx context.Context) ([]string, error) {
		articles, err := t.store.All(ctx)
		if err != nil {
			return nil, err
		}
		return DistinctHashtags(articles), nil
	})
}
