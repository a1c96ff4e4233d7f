package storage

import (
	"sort"
	"strings"

	"github.com/bilgisen/synchronicity/internal/models"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// sortByPublishedDesc orders newest first, falling back to id for a stable order.
func sortByPublishedDesc(articles []models.Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		if !articles[i].PublishedDate.Equal(articles[j].PublishedDate) {
			return articles[i].PublishedDate.After(articles[j].PublishedDate)
		}
		return articles[i].ID < articles[j].ID
	})
}

func matchesQuery(a *models.Article, hashtag, search string) bool {
	if hashtag != "" && hashtag != "all" && !a.HasHashtag(hashtag) {
		return false
	}
	if search == "" {
		return true
	}
	search = strings.ToLower(search)
	return strings.Contains(strings.ToLower(a.Title), search) ||
		strings.Contains(strings.ToLower(a.Subtitle), search) ||
		strings.Contains(strings.ToLower(a.Preview), search)
}

func normalizeQuery(q models.ArticleQuery) models.ArticleQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	q.Limit = min(q.Limit, MaxLimit)
	q.Offset = max(q.Offset, 0)
	if q.Hashtag == "all" {
		q.Hashtag = ""
	}
	return q
}

// paginate filters, orders and slices a full article set.
func paginate(all []models.Article, q models.ArticleQuery) models.ArticlePage {
	q = normalizeQuery(q)

	matched := make([]models.Article, 0, len(all))
	for i := range all {
		if matchesQuery(&all[i], q.Hashtag, q.Search) {
			matched = append(matched, all[i])
		}
	}
	sortByPublishedDesc(matched)

	page := models.ArticlePage{
		Articles: []models.Article{},
		Total:    len(matched),
		Limit:    q.Limit,
		Offset:   q.Offset,
	}
	if q.Offset < len(matched) {
		end := min(q.Offset+q.Limit, len(matched))
		page.Articles = matched[q.Offset:end]
	}
	page.HasMore = q.Offset+len(page.Articles) < page.Total
	return page
}

// rank scores articles the way a weighted text-search index would: every query
// term must appear somewhere, title hits weigh 3, subtitle 2, preview 1.
func rank(all []models.Article, query string, limit int) []models.SearchResult {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return []models.SearchResult{}
	}

	results := []models.SearchResult{}
	for _, a := range all {
		title, subtitle, preview := strings.ToLower(a.Title), strings.ToLower(a.Subtitle), strings.ToLower(a.Preview)

		score := 0
		matchedAll := true
		for _, term := range terms {
			hits := 3*strings.Count(title, term) + 2*strings.Count(subtitle, term) + strings.Count(preview, term)
			if hits == 0 {
				matchedAll = false
				break
			}
			score += hits
		}
		if matchedAll {
			results = append(results, models.SearchResult{Article: a, Rank: float64(score)})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Rank != results[j].Rank {
			return results[i].Rank > results[j].Rank
		}
		return results[i].PublishedDate.After(results[j].PublishedDate)
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// mergeExisting carries the counters and enrichment of a stored article over to its re-synced version.
func mergeExisting(incoming models.Article, existing *models.Article) models.Article {
	if existing == nil {
		return incoming
	}
	incoming.Views = existing.Views
	incoming.Likes = existing.Likes
	if incoming.OptimizedImages == nil && existing.OptimizedImages != nil {
		incoming.OptimizedImages = existing.OptimizedImages
	}
	return incoming
}
