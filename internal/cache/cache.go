package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bilgisen/synchronicity/internal/logger"
	"github.com/bilgisen/synchronicity/internal/metrics"
)

// Default TTLs per namespace.
const (
	DefaultListingTTL   = 300 * time.Second
	DefaultAnalyticsTTL = time.Hour
)

// Key namespaces. InvalidateAll clears every one of them.
const (
	NamespaceArticles  = "articles"
	NamespaceHashtags  = "hashtags"
	NamespaceAnalytics = "analytics"
	NamespaceSearch    = "search"
)

// Namespaces lists every namespace cleared by InvalidateAll.
var Namespaces = []string{NamespaceArticles, NamespaceHashtags, NamespaceAnalytics, NamespaceSearch}

// Cache is an advisory key-value store: losing entries only costs freshness.
type Cache interface {
	// Get decodes the value stored under key into dest and reports whether it was found.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Invalidate removes every key matching the glob pattern and returns how many were removed.
	Invalidate(ctx context.Context, pattern string) (int, error)
	InvalidateAll(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// ListingKey builds the key of an article listing page.
func ListingKey(hashtag, search string, limit, offset int) string {
	if hashtag == "" {
		hashtag = "all"
	}
	if search == "" {
		search = "none"
	}
	return fmt.Sprintf("%s:%s:%s:%d:%d", NamespaceArticles, hashtag, search, limit, offset)
}

// SearchKey builds the key of a full-text search result.
func SearchKey(query string, limit int) string {
	return fmt.Sprintf("%s:%s:%d", NamespaceSearch, query, limit)
}

// AnalyticsKey builds a key in the analytics namespace.
func AnalyticsKey(parts ...string) string {
	return NamespaceAnalytics + ":" + strings.Join(parts, ":")
}

// HashtagsKey is the key of the sorted hashtag list.
const HashtagsKey = NamespaceHashtags + ":all"

// Fetch returns the cached value under key, or computes, stores and returns it.
// Cache failures are logged and treated as misses; only compute errors are returned.
func Fetch[T any](ctx context.Context, c Cache, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, bool, error) {
	ns := namespaceOf(key)

	var cached T
	found, err := c.Get(ctx, key, &cached)
	switch {
	case err != nil:
		metrics.RecordCacheLookup(ns, "error")
		logger.Get().Warn().Err(err).Str("key", key).Msg("Cache read failed, recomputing")
	case found:
		metrics.RecordCacheLookup(ns, "hit")
		return cached, true, nil
	default:
		metrics.RecordCacheLookup(ns, "miss")
	}

	value, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}

	if err := c.Set(ctx, key, value, ttl); err != nil {
		logger.Get().Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
	return value, false, nil
}

// InvalidateQuietly invalidates patterns and logs instead of returning failures.
func InvalidateQuietly(ctx context.Context, c Cache, patterns ...string) {
	for _, pattern := range patterns {
		if _, err := c.Invalidate(ctx, pattern); err != nil {
			logger.Get().Warn().Err(err).Str("pattern", pattern).Msg("Cache invalidation failed")
		}
	}
}

func invalidateNamespaces(ctx context.Context, c Cache) error {
	var firstErr error
	for _, ns := range Namespaces {
		if _, err := c.Invalidate(ctx, ns+":*"); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func namespaceOf(key string) string {
	ns, _, _ := strings.Cut(key, ":")
	return ns
}
