package models

import "time"

// Image size tiers produced by the image optimizer.
const (
	TierThumbnail = "thumbnail"
	TierCard      = "card"
	TierHero      = "hero"
)

// Article is the normalized record extracted from one feed entry
type Article struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Subtitle        string            `json:"subtitle"`
	Preview         string            `json:"preview"`
	RawContent      string            `json:"rawContent"`
	SubstackURL     string            `json:"substackUrl"`
	ImageURL        string            `json:"imageUrl"`
	Hashtags        []string          `json:"hashtags"`
	PublishedDate   time.Time         `json:"publishedDate"`
	Views           int64             `json:"views"`
	Likes           int64             `json:"likes"`
	ReadingTime     int               `json:"readingTime"`
	OptimizedImages map[string]string `json:"optimizedImages,omitempty"`
}

// HasHashtag reports whether tag is one of the article's hashtags (case-sensitive).
func (a *Article) HasHashtag(tag string) bool {
	for _, h := range a.Hashtags {
		if h == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can't mutate shared state.
func (a Article) Clone() Article {
	out := a
	out.Hashtags = append([]string{}, a.Hashtags...)
	if a.OptimizedImages != nil {
		out.OptimizedImages = make(map[string]string, len(a.OptimizedImages))
		for k, v := range a.OptimizedImages {
			out.OptimizedImages[k] = v
		}
	}
	return out
}

// ArticleQuery filters and paginates article listings
type ArticleQuery struct {
	Hashtag string
	Search  string
	Limit   int
	Offset  int
}

// ArticlePage is one page of a listing.
type ArticlePage struct {
	Articles []Article `json:"articles"`
	Total    int       `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
	HasMore  bool      `json:"hasMore"`
}

// SearchResult is an article with its text-search rank.
type SearchResult struct {
	Article
	Rank float64 `json:"rank"`
}
