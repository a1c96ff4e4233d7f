package models

import "time"

// FeedEntry is one raw item of the syndication feed, before extraction.
type FeedEntry struct {
	Title     string
	Link      string
	Published time.Time

	// ContentEncoded is the full HTML body (content:encoded); Summary is the
	// plain description field used when the full body is absent.
	ContentEncoded string
	Summary        string
	ContentSnippet string

	EnclosureURL      string
	MediaThumbnailURL string
	MediaContentURL   string
}

// Body returns the HTML the extractor should parse.
func (e FeedEntry) Body() string {
	if e.ContentEncoded != "" {
		return e.ContentEncoded
	}
	return e.Summary
}
