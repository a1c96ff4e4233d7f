package feed

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/bilgisen/synchronicity/internal/apperr"
	"github.com/bilgisen/synchronicity/internal/models"
	"github.com/bilgisen/synchronicity/internal/utils"
)

const (
	// PlaceholderImage is used when an entry carries no image at all.
	PlaceholderImage = "https://images.unsplash.com/photo-1519681393784-d120267933ba?w=800&q=80"

	maxBodyBytes     = 5 << 20
	wordsPerMinute   = 200
	subtitleMaxRunes = 100
)

var hashtagPattern = regexp.MustCompile(`#([A-Za-z][A-Za-z0-9]*(?:[A-Z][a-z0-9]*)*)`)

// blockSelector lists elements whose text should not run into the next block.
const blockSelector = "p, div, br, li, h1, h2, h3, h4, h5, h6, blockquote, pre, tr, figcaption, section, article"

// Extractor turns raw feed entries into normalized articles.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract normalizes one entry. Any failure, including a panic inside the HTML
// parser, is reported as an error wrapping apperr.ErrExtraction.
func (e *Extractor) Extract(entry models.FeedEntry) (article *models.Article, err error) {
	defer func() {
		if r := recover(); r != nil {
			article = nil
			err = fmt.Errorf("%w: panic while extracting %q: %v", apperr.ErrExtraction, entry.Link, r)
		}
	}()

	body := entry.Body()
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%w: body of %q exceeds %d bytes", apperr.ErrExtraction, entry.Link, maxBodyBytes)
	}
	if !utf8.ValidString(body) {
		return nil, fmt.Errorf("%w: body of %q is not valid UTF-8", apperr.ErrExtraction, entry.Link)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse body of %q: %v", apperr.ErrExtraction, entry.Link, err)
	}
	doc.Find("script, style, noscript").Remove()

	paragraphs := doc.Find("p")
	firstParagraph := strings.TrimSpace(paragraphs.First().Text())

	var previewParts []string
	paragraphs.Slice(0, min(2, paragraphs.Length())).Each(func(_ int, s *goquery.Selection) {
		previewParts = append(previewParts, s.Text())
	})

	inlineImage := ""
	if src, ok := doc.Find("img[src]").First().Attr("src"); ok {
		inlineImage = strings.TrimSpace(src)
	}

	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		s.AfterHtml("\n")
	})
	rawContent := normalizeText(doc.Text())

	a := &models.Article{
		Title:         entry.Title,
		Subtitle:      subtitle(entry.ContentSnippet, firstParagraph),
		Preview:       strings.TrimSpace(strings.Join(previewParts, "\n\n")),
		RawContent:    rawContent,
		SubstackURL:   entry.Link,
		ImageURL:      featuredImage(entry, inlineImage),
		Hashtags:      ExtractHashtags(rawContent),
		PublishedDate: entry.Published,
		ReadingTime:   ReadingTime(rawContent),
	}
	a.ID = articleID(entry.Link, entry.Title, entry.Published, rawContent)
	return a, nil
}

// ExtractHashtags returns distinct hashtags in order of first occurrence, without the '#'.
func ExtractHashtags(text string) []string {
	tags := []string{}
	seen := make(map[string]struct{})
	for _, m := range hashtagPattern.FindAllStringSubmatch(text, -1) {
		tag := m[1]
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

// ReadingTime is ceil(words/200) minutes; text without words reads in zero minutes.
func ReadingTime(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words) / wordsPerMinute))
}

func subtitle(snippet, firstParagraph string) string {
	if line := firstLine(snippet); line != "" {
		return line
	}
	return strings.TrimSpace(truncateRunes(firstParagraph, subtitleMaxRunes))
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// featuredImage applies the strict priority: enclosure, media thumbnail,
// media content, first inline image, placeholder.
func featuredImage(entry models.FeedEntry, inlineImage string) string {
	for _, candidate := range []string{
		entry.EnclosureURL,
		entry.MediaThumbnailURL,
		entry.MediaContentURL,
		inlineImage,
	} {
		if c := strings.TrimSpace(candidate); c != "" {
			return c
		}
	}
	return PlaceholderImage
}

// articleID is the last non-empty path segment of the link. Entries without a
// usable link get a hash of their content so re-syncs stay idempotent.
func articleID(link, title string, published time.Time, rawContent string) string {
	if seg := lastPathSegment(link); seg != "" {
		return seg
	}
	stamp := ""
	if !published.IsZero() {
		stamp = published.UTC().Format(time.RFC3339)
	}
	return "h-" + utils.ShortHash(16, title, stamp, rawContent)
}

func lastPathSegment(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}

	path := link
	if u, err := url.Parse(link); err == nil {
		path = u.Path
	} else {
		if i := strings.IndexAny(path, "?#"); i >= 0 {
			path = path[:i]
		}
	}

	segments := strings.Split(path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(segments[i]); s != "" {
			return s
		}
	}
	return ""
}

// normalizeText trims every line and collapses runs of blank lines.
func normalizeText(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
