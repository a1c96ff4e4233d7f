package models

import "time"

// EventType distinguishes analytics events
type EventType string

const (
	EventView EventType = "view"
	EventLike EventType = "like"
)

// AnalyticsEvent is append-only; it is never mutated or deleted.
type AnalyticsEvent struct {
	ID        string            `json:"id"`
	ArticleID string            `json:"articleId"`
	EventType EventType         `json:"eventType"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// DailyCount is one calendar-day bucket of an article's event series.
type DailyCount struct {
	Date  string `json:"date"`
	Views int    `json:"views"`
}

// HashtagStats aggregates article counters grouped by hashtag
type HashtagStats struct {
	Tag      string `json:"tag"`
	Views    int64  `json:"views"`
	Likes    int64  `json:"likes"`
	Count    int    `json:"count"`
	AvgViews int64  `json:"avgViews"`
	AvgLikes int64  `json:"avgLikes"`
}

// Dashboard is the overall analytics rollup.
type Dashboard struct {
	TotalArticles  int            `json:"totalArticles"`
	TotalViews     int64          `json:"totalViews"`
	TotalLikes     int64          `json:"totalLikes"`
	AvgReadingTime int            `json:"avgReadingTime"`
	TopHashtags    []HashtagStats `json:"topHashtags"`
	RecentArticles []Article      `json:"recentArticles"`
	LastUpdated    time.Time      `json:"lastUpdated"`
}
