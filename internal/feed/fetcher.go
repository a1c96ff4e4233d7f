package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"

	"github.com/bilgisen/synchronicity/internal/apperr"
	"github.com/bilgisen/synchronicity/internal/models"
)

// Fetcher downloads and parses a publication's syndication feed.
type Fetcher struct {
	client *resty.Client
	parser *gofeed.Parser
}

// NewFetcher creates a fetcher with a per-request timeout and transport retry count.
func NewFetcher(timeout time.Duration, retries int) *Fetcher {
	return &Fetcher{
		client: resty.New().
			SetTimeout(timeout).
			SetRetryCount(retries).
			SetRetryWaitTime(2 * time.Second).
			SetRetryMaxWaitTime(10 * time.Second).
			SetHeader("User-Agent", "synchronicity/1.0 (+feed sync)"),
		parser: gofeed.NewParser(),
	}
}

// Fetch retrieves <baseURL>/feed and returns its entries in feed order.
// Any transport failure, non-2xx status or malformed feed wraps apperr.ErrFetch.
func (f *Fetcher) Fetch(ctx context.Context, baseURL string) ([]models.FeedEntry, error) {
	feedURL := strings.TrimRight(baseURL, "/") + "/feed"

	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8").
		Get(feedURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch feed from %s: %v", apperr.ErrFetch, feedURL, err)
	}
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: unexpected status code %d from %s", apperr.ErrFetch, resp.StatusCode(), feedURL)
	}

	parsed, err := f.parser.ParseString(resp.String())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse feed from %s: %v", apperr.ErrFetch, feedURL, err)
	}

	entries := make([]models.FeedEntry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		entries = append(entries, toEntry(item))
	}
	return entries, nil
}

func toEntry(item *gofeed.Item) models.FeedEntry {
	entry := models.FeedEntry{
		Title:          strings.TrimSpace(item.Title),
		Link:           strings.TrimSpace(item.Link),
		ContentEncoded: item.Content,
		Summary:        item.Description,
		ContentSnippet: snippet(item.Description),
	}

	switch {
	case item.PublishedParsed != nil:
		entry.Published = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		entry.Published = item.UpdatedParsed.UTC()
	}

	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" {
			entry.EnclosureURL = enc.URL
			break
		}
	}

	if mediaExt, ok := item.Extensions["media"]; ok {
		for _, thumb := range mediaExt["thumbnail"] {
			if u := thumb.Attrs["url"]; u != "" {
				entry.MediaThumbnailURL = u
				break
			}
		}
		for _, content := range mediaExt["content"] {
			if u := content.Attrs["url"]; u != "" {
				entry.MediaContentURL = u
				break
			}
		}
	}
	if entry.MediaThumbnailURL == "" && item.Image != nil {
		entry.MediaThumbnailURL = item.Image.URL
	}

	return entry
}

// snippet strips markup from a description, leaving plain text.
func snippet(description string) string {
	if strings.TrimSpace(description) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(description))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Text())
}

// FindEntry returns the entry whose link matches articleURL, ignoring
// trailing slashes, query strings and fragments.
func FindEntry(entries []models.FeedEntry, articleURL string) (models.FeedEntry, bool) {
	want := canonicalLink(articleURL)
	for _, e := range entries {
		if canonicalLink(e.Link) == want {
			return e, true
		}
	}
	return models.FeedEntry{}, false
}

func canonicalLink(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimRight(raw, "/")
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	return strings.TrimRight(u.String(), "/")
}
