package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bilgisen/synchronicity/internal/apperr"
	"github.com/bilgisen/synchronicity/internal/models"
)

var base = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

func article(id string, daysAgo int, tags ...string) models.Article {
	return models.Article{
		ID:            id,
		Title:         "Title " + id,
		Subtitle:      "Subtitle " + id,
		Preview:       "Preview " + id,
		Hashtags:      tags,
		PublishedDate: base.AddDate(0, 0, -daysAgo),
		ReadingTime:   3,
	}
}

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestReplaceAllPreservesCounters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.ReplaceAll(ctx, []models.Article{article("a", 1)}, RetainMissing))
	require.NoError(t, s.IncrementViews(ctx, "a"))
	require.NoError(t, s.IncrementViews(ctx, "a"))
	require.NoError(t, s.IncrementLikes(ctx, "a"))
	require.NoError(t, s.SetOptimizedImages(ctx, "a", map[string]string{"card": "https://cdn/a.jpg"}))

	updated := article("a", 1)
	updated.Title = "Renamed"
	require.NoError(t, s.ReplaceAll(ctx, []models.Article{updated}, RetainMissing))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, int64(2), got.Views)
	assert.Equal(t, int64(1), got.Likes)
	assert.Equal(t, "https://cdn/a.jpg", got.OptimizedImages["card"])
}

func TestReplaceAllRetention(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		policy RetentionPolicy
		want   []string
	}{
		{"keep", RetainMissing, []string{"b", "a"}},
		{"prune", PruneMissing, []string{"b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			require.NoError(t, s.ReplaceAll(ctx, []models.Article{article("a", 2)}, tt.policy))
			require.NoError(t, s.ReplaceAll(ctx, []models.Article{article("b", 1)}, tt.policy))

			all, err := s.All(ctx)
			require.NoError(t, err)
			var ids []string
			for _, a := range all {
				ids = append(ids, a.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestQueryFiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.ReplaceAll(ctx, []models.Article{
		article("a", 3, "Go"),
		article("b", 2, "Go", "Web"),
		article("c", 1, "Web"),
	}, RetainMissing))

	page, err := s.Query(ctx, models.ArticleQuery{Hashtag: "Go", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Articles, 1)
	assert.Equal(t, "b", page.Articles[0].ID)
	assert.True(t, page.HasMore)

	page, err = s.Query(ctx, models.ArticleQuery{Hashtag: "Go", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page.Articles, 1)
	assert.Equal(t, "a", page.Articles[0].ID)
	assert.False(t, page.HasMore)

	page, err = s.Query(ctx, models.ArticleQuery{Hashtag: "go"})
	require.NoError(t, err)
	assert.Zero(t, page.Total, "hashtag match is case-sensitive")

	page, err = s.Query(ctx, models.ArticleQuery{Search: "SUBTITLE C"})
	require.NoError(t, err)
	require.Len(t, page.Articles, 1)
	assert.Equal(t, "c", page.Articles[0].ID)

	page, err = s.Query(ctx, models.ArticleQuery{Hashtag: "all", Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Empty(t, page.Articles)
	assert.Equal(t, DefaultLimit, page.Limit)
}

func TestSearchRanksTitleAboveBody(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	inTitle := article("a", 2)
	inTitle.Title = "Gardening in winter"
	inPreview := article("b", 1)
	inPreview.Preview = "A note on gardening"
	require.NoError(t, s.ReplaceAll(ctx, []models.Article{inTitle, inPreview, article("c", 0)}, RetainMissing))

	results, err := s.Search(ctx, "gardening", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Greater(t, results[0].Rank, results[1].Rank)

	results, err = s.Search(ctx, "gardening winter", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	results, err = s.Search(ctx, "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestUpdatesOnMissingArticle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	assert.ErrorIs(t, s.IncrementViews(ctx, "missing"), apperr.ErrNotFound)
	assert.ErrorIs(t, s.IncrementLikes(ctx, "missing"), apperr.ErrNotFound)
	assert.ErrorIs(t, s.SetHashtags(ctx, "missing", []string{"x"}), apperr.ErrNotFound)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Upsert(ctx, article("a", 0, "Go")))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	got.Hashtags[0] = "Mutated"

	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"Go"}, again.Hashtags)
}

func TestSnapshotSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewMemoryStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.ReplaceAll(ctx, []models.Article{article("a", 0, "Go")}, RetainMissing))
	require.NoError(t, s.IncrementLikes(ctx, "a"))
	require.NoError(t, s.AppendEvent(ctx, models.AnalyticsEvent{
		ID: "e1", ArticleID: "a", EventType: models.EventLike, Timestamp: base,
	}))

	reopened, err := NewMemoryStore(dir)
	require.NoError(t, err)

	got, err := reopened.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Likes)
	assert.Equal(t, []string{"Go"}, got.Hashtags)

	events, err := reopened.Events(ctx, "a", time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventLike, events[0].EventType)
}

func TestEventsSince(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore("")
	require.NoError(t, err)

	for i, ts := range []time.Time{base.AddDate(0, 0, -10), base.AddDate(0, 0, -1), base} {
		require.NoError(t, s.AppendEvent(ctx, models.AnalyticsEvent{
			ID: string(rune('a' + i)), ArticleID: "x", EventType: models.EventView, Timestamp: ts,
		}))
	}
	require.NoError(t, s.AppendEvent(ctx, models.AnalyticsEvent{
		ID: "other", ArticleID: "y", EventType: models.EventView, Timestamp: base,
	}))

	events, err := s.Events(ctx, "x", base.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := NewMemoryStore("")
	require.NoError(t, err)
	assert.ErrorIs(t, s.Upsert(ctx, article("a", 0)), context.Canceled)
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}
