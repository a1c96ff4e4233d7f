// Package content serves per-topic supplemental pages stored as HTML or
// Markdown files.
package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/bilgisen/synchronicity/internal/apperr"
)

var (
	tagPattern    = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	safeClass     = regexp.MustCompile(`^[A-Za-z0-9 _-]+$`)
	httpsOnly     = regexp.MustCompile(`^https://`)
	schemePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*:`)
)

// Kind selects which directory a page is read from.
type Kind string

const (
	KindHTML     Kind = "html"
	KindMarkdown Kind = "markdown"
	KindIntro    Kind = "intros"
)

// Embedder substitutes embed directives inside a body.
type Embedder interface {
	Process(ctx context.Context, body string) string
}

// Page is one rendered topic page. A missing file is a page with Exists false.
type Page struct {
	Exists bool   `json:"exists"`
	Tag    string `json:"tag"`
	Title  string `json:"title,omitempty"`
	HTML   string `json:"html,omitempty"`
}

// Service renders topic pages from files under root.
type Service struct {
	root      string
	imageBase string
	embedder  Embedder
	markdown  goldmark.Markdown
	policy    *bluemonday.Policy
}

// NewService creates a content service. embedder may be nil.
func NewService(root, imageBase string, embedder Embedder) *Service {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("src").Matching(httpsOnly).OnElements("iframe")
	policy.AllowAttrs("width", "height", "frameborder", "allow", "allowfullscreen", "title").OnElements("iframe")
	policy.AllowAttrs("class").Matching(safeClass).OnElements("div", "span", "code", "pre")
	policy.AllowDataAttributes()

	return &Service{
		root:      root,
		imageBase: strings.TrimRight(imageBase, "/"),
		embedder:  embedder,
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		),
		policy: policy,
	}
}

// ValidateTag rejects tags that could escape the content directory.
func ValidateTag(tag string) error {
	if !tagPattern.MatchString(tag) {
		return fmt.Errorf("%w: invalid tag %q", apperr.ErrValidation, tag)
	}
	return nil
}

// Page loads and renders the page of the given kind for tag.
func (s *Service) Page(ctx context.Context, kind Kind, tag string) (Page, error) {
	if err := ValidateTag(tag); err != nil {
		return Page{}, err
	}

	ext := ".md"
	if kind == KindHTML {
		ext = ".html"
	}
	data, err := os.ReadFile(filepath.Join(s.root, string(kind), tag+ext))
	if errors.Is(err, os.ErrNotExist) {
		return Page{Exists: false, Tag: tag}, nil
	}
	if err != nil {
		return Page{}, fmt.Errorf("failed to read %s content for %q: %w", kind, tag, err)
	}

	var html, title string
	if kind == KindHTML {
		html, title, err = s.renderHTML(string(data), tag)
	} else {
		title = markdownTitle(string(data))
		html, err = s.RenderMarkdown(ctx, string(data), tag)
	}
	if err != nil {
		return Page{}, err
	}
	return Page{Exists: true, Tag: tag, Title: title, HTML: html}, nil
}

// RenderMarkdown resolves embeds, converts Markdown to HTML, rewrites relative
// images under the tag's image directory and sanitizes the result.
func (s *Service) RenderMarkdown(ctx context.Context, source, tag string) (string, error) {
	if s.embedder != nil {
		source = s.embedder.Process(ctx, source)
	}

	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown for %q: %w", tag, err)
	}

	out, _, err := s.renderHTML(buf.String(), tag)
	return out, err
}

func (s *Service) renderHTML(source, tag string) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(source))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse html for %q: %w", tag, err)
	}

	doc.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		img.SetAttr("src", s.imagePath(tag, src))
	})
	title := strings.TrimSpace(doc.Find("h1").First().Text())

	body, err := doc.Find("body").Html()
	if err != nil {
		return "", "", fmt.Errorf("failed to serialize html for %q: %w", tag, err)
	}
	return strings.TrimSpace(s.policy.Sanitize(body)), title, nil
}

// imagePath maps a relative image reference to <imageBase>/<tag>/<src>.
// Absolute paths and URLs are left alone.
func (s *Service) imagePath(tag, src string) string {
	src = strings.TrimSpace(src)
	if src == "" || strings.HasPrefix(src, "/") || schemePattern.MatchString(src) {
		return src
	}
	return s.imageBase + "/" + tag + "/" + strings.TrimPrefix(src, "./")
}

func markdownTitle(source string) string {
	for _, line := range strings.Split(source, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}
