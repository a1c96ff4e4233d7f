package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/bilgisen/synchronicity/internal/models"
)

const defaultRange = "30d"

var rangeDays = map[string]int{
	"7d":  7,
	"30d": 30,
	"90d": 90,
	"1y":  365,
}

// ParseRange normalizes a lookback range; unknown values fall back to 30d.
func ParseRange(r string) (string, int) {
	if days, ok := rangeDays[r]; ok {
		return r, days
	}
	return defaultRange, rangeDays[defaultRange]
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DailyViews counts view events per UTC day for days consecutive days starting
// at since. Days without events are present with zero views.
func DailyViews(events []models.AnalyticsEvent, since time.Time, days int) []models.DailyCount {
	since = startOfDay(since)
	out := make([]models.DailyCount, days)
	index := make(map[string]int, days)
	for i := range out {
		date := since.AddDate(0, 0, i).Format(time.DateOnly)
		out[i] = models.DailyCount{Date: date}
		index[date] = i
	}

	for _, ev := range events {
		if ev.EventType != models.EventView {
			continue
		}
		if i, ok := index[ev.Timestamp.UTC().Format(time.DateOnly)]; ok {
			out[i].Views++
		}
	}
	return out
}

// HashtagPerformance groups article counters by hashtag. An article with N
// hashtags counts towards N groups. Sorted by views descending, then tag.
func HashtagPerformance(articles []models.Article) []models.HashtagStats {
	byTag := make(map[string]*models.HashtagStats)
	for _, a := range articles {
		for _, tag := range a.Hashtags {
			st, ok := byTag[tag]
			if !ok {
				st = &models.HashtagStats{Tag: tag}
				byTag[tag] = st
			}
			st.Views += a.Views
			st.Likes += a.Likes
			st.Count++
		}
	}

	out := make([]models.HashtagStats, 0, len(byTag))
	for _, st := range byTag {
		st.AvgViews = roundDiv(st.Views, st.Count)
		st.AvgLikes = roundDiv(st.Likes, st.Count)
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Views != out[j].Views {
			return out[i].Views > out[j].Views
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}

func roundDiv(total int64, count int) int64 {
	if count == 0 {
		return 0
	}
	return int64(math.Round(float64(total) / float64(count)))
}

// BuildDashboard computes the overall rollup.
func BuildDashboard(articles []models.Article, now time.Time) models.Dashboard {
	d := models.Dashboard{
		TotalArticles:  len(articles),
		TopHashtags:    []models.HashtagStats{},
		RecentArticles: []models.Article{},
		LastUpdated:    now,
	}

	readingTime := 0
	for _, a := range articles {
		d.TotalViews += a.Views
		d.TotalLikes += a.Likes
		readingTime += a.ReadingTime
	}
	if len(articles) > 0 {
		d.AvgReadingTime = int(math.Round(float64(readingTime) / float64(len(articles))))
	}

	top := HashtagPerformance(articles)
	d.TopHashtags = top[:min(topHashtagsLimit, len(top))]

	recent := append([]models.Article{}, articles...)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].PublishedDate.After(recent[j].PublishedDate)
	})
	d.RecentArticles = recent[:min(recentArticlesLimit, len(recent))]
	return d
}

// DistinctHashtags returns every hashtag once, sorted.
func DistinctHashtags(articles []models.Article) []string {
	seen := make(map[string]struct{})
	tags := []string{}
	for _, a := range articles {
		for _, tag := range a.Hashtags {
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags
}
