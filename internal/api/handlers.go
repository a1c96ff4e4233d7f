package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/bilgisen/synchronicity/internal/analytics"
	"github.com/bilgisen/synchronicity/internal/cache"
	"github.com/bilgisen/synchronicity/internal/content"
	"github.com/bilgisen/synchronicity/internal/embed"
	"github.com/bilgisen/synchronicity/internal/feed"
	"github.com/bilgisen/synchronicity/internal/logger"
	"github.com/bilgisen/synchronicity/internal/middleware"
	"github.com/bilgisen/synchronicity/internal/models"
	"github.com/bilgisen/synchronicity/internal/storage"
)

const (
	defaultSearchLimit = 20
	serviceName        = "synchronicity"
	serviceVersion     = "1.0.0"
)

// Syncer runs full and single-article syncs.
type Syncer interface {
	Run(ctx context.Context) (feed.SyncResult, error)
	RunSingle(ctx context.Context, articleURL string) (*models.Article, error)
	Status() feed.SyncStatus
}

// ImageBackfiller queues image work for articles missing variants.
type ImageBackfiller interface {
	Backfill(ctx context.Context) (int, error)
}

// Deps are the collaborators the handlers serve.
type Deps struct {
	Store         storage.Store
	Cache         cache.Cache
	Tracker       *analytics.Tracker
	Sync          Syncer
	Images        ImageBackfiller
	Content       *content.Service
	Embeds        *embed.Resolver
	ListingTTL    time.Duration
	Timeout       time.Duration
	WebhookSecret string
}

type Handlers struct {
	store     storage.Store
	cache     cache.Cache
	tracker   *analytics.Tracker
	sync      Syncer
	images    ImageBackfiller
	content   *content.Service
	embeds    *embed.Resolver
	validator *middleware.Validator

	listingTTL    time.Duration
	timeout       time.Duration
	webhookSecret string
	log           zerolog.Logger
}

func NewHandlers(deps Deps) *Handlers {
	if deps.ListingTTL <= 0 {
		deps.ListingTTL = cache.DefaultListingTTL
	}
	if deps.Timeout <= 0 {
		deps.Timeout = 30 * time.Second
	}
	return &Handlers{
		store:         deps.Store,
		cache:         deps.Cache,
		tracker:       deps.Tracker,
		sync:          deps.Sync,
		images:        deps.Images,
		content:       deps.Content,
		embeds:        deps.Embeds,
		validator:     middleware.NewValidator(),
		listingTTL:    deps.ListingTTL,
		timeout:       deps.Timeout,
		webhookSecret: deps.WebhookSecret,
		log:           logger.Component("api"),
	}
}

// requestContext bounds work done on behalf of a request.
func (h *Handlers) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), h.timeout)
}

type listQuery struct {
	Hashtag string `query:"hashtag"`
	Search  string `query:"search"`
	Limit   int    `query:"limit" validate:"omitempty,min=1,max=100"`
	Offset  int    `query:"offset" validate:"min=0"`
}

type listResponse struct {
	models.ArticlePage
	Cached bool `json:"cached"`
}

// ListArticles handles GET /api/articles
func (h *Handlers) ListArticles(c *fiber.Ctx) error {
	q := middleware.Validated[listQuery](c)
	if q.Limit == 0 {
		q.Limit = storage.DefaultLimit
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	key := cache.ListingKey(q.Hashtag, q.Search, q.Limit, q.Offset)
	page, cached, err := cache.Fetch(ctx, h.cache, key, h.listingTTL, func(ctx context.Context) (models.ArticlePage, error) {
		return h.store.Query(ctx, models.ArticleQuery{
			Hashtag: q.Hashtag,
			Search:  q.Search,
			Limit:   q.Limit,
			Offset:  q.Offset,
		})
	})
	if err != nil {
		return err
	}

	return c.JSON(listResponse{ArticlePage: page, Cached: cached})
}

// GetArticle handles GET /api/articles/:id. The view is recorded in the
// background and never delays or fails the response.
func (h *Handlers) GetArticle(c *fiber.Ctx) error {
	id := c.Params("id")

	ctx, cancel := h.requestContext(c)
	defer cancel()

	article, err := h.store.Get(ctx, id)
	if err != nil {
		return err
	}

	metadata := map[string]string{
		"userAgent": c.Get(fiber.HeaderUserAgent),
		"referrer":  c.Get(fiber.HeaderReferer),
	}
	go h.trackView(id, metadata)

	return c.JSON(article)
}

func (h *Handlers) trackView(id string, metadata map[string]string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.tracker.TrackView(ctx, id, metadata); err != nil {
		h.log.Warn().Err(err).Str("article_id", id).Msg("View tracking failed")
	}
}

// LikeArticle handles POST /api/articles/:id/like
func (h *Handlers) LikeArticle(c *fiber.Ctx) error {
	id := c.Params("id")

	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.tracker.TrackLike(ctx, id, analytics.AnonymousUser); err != nil {
		return err
	}
	cache.InvalidateQuietly(ctx, h.cache, cache.NamespaceArticles+":*", cache.NamespaceAnalytics+":*")

	article, err := h.store.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"likes":   article.Likes,
	})
}

type hashtagsRequest struct {
	Hashtags []string `json:"hashtags" validate:"required,dive,required,alphanum"`
}

// SetHashtags handles PUT /api/articles/:id/hashtags
func (h *Handlers) SetHashtags(c *fiber.Ctx) error {
	id := c.Params("id")
	req := middleware.Validated[hashtagsRequest](c)

	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.store.SetHashtags(ctx, id, dedupe(req.Hashtags)); err != nil {
		return err
	}
	cache.InvalidateQuietly(ctx, h.cache,
		cache.NamespaceArticles+":*",
		cache.NamespaceHashtags+":*",
		cache.NamespaceAnalytics+":*",
		cache.NamespaceSearch+":*",
	)

	article, err := h.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(article)
}

func dedupe(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

type analyticsQuery struct {
	TimeRange string `query:"timeRange" validate:"omitempty,oneof=7d 30d 90d 1y"`
}

// ArticleAnalytics handles GET /api/articles/:id/analytics
func (h *Handlers) ArticleAnalytics(c *fiber.Ctx) error {
	id := c.Params("id")
	q := middleware.Validated[analyticsQuery](c)

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, cached, err := h.tracker.GetArticleAnalytics(ctx, id, q.TimeRange)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"analytics": result,
		"cached":    cached,
	})
}

// Hashtags handles GET /api/hashtags
func (h *Handlers) Hashtags(c *fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	tags, cached, err := h.tracker.Hashtags(ctx)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"hashtags": tags,
		"cached":   cached,
	})
}

// HashtagPerformance handles GET /api/analytics/hashtags
func (h *Handlers) HashtagPerformance(c *fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	stats, cached, err := h.tracker.GetHashtagPerformance(ctx)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"hashtags": stats,
		"cached":   cached,
	})
}

type dashboardResponse struct {
	models.Dashboard
	Cached bool `json:"cached"`
}

// Dashboard handles GET /api/analytics/dashboard
func (h *Handlers) Dashboard(c *fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	dashboard, cached, err := h.tracker.Dashboard(ctx)
	if err != nil {
		return err
	}
	return c.JSON(dashboardResponse{Dashboard: dashboard, Cached: cached})
}

type searchQuery struct {
	Q     string `query:"q" validate:"required"`
	Limit int    `query:"limit" validate:"omitempty,min=1,max=100"`
}

// Search handles GET /api/search
func (h *Handlers) Search(c *fiber.Ctx) error {
	q := middleware.Validated[searchQuery](c)
	if q.Limit == 0 {
		q.Limit = defaultSearchLimit
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	results, cached, err := cache.Fetch(ctx, h.cache, cache.SearchKey(q.Q, q.Limit), h.listingTTL,
		func(ctx context.Context) ([]models.SearchResult, error) {
			return h.store.Search(ctx, q.Q, q.Limit)
		})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"query":   q.Q,
		"results": results,
		"total":   len(results),
		"cached":  cached,
	})
}
