package embed

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/bilgisen/synchronicity/internal/apperr"
	"github.com/bilgisen/synchronicity/internal/logger"
)

// OEmbed is the subset of an oEmbed response the resolver uses.
type OEmbed struct {
	Type         string `json:"type"`
	Title        string `json:"title,omitempty"`
	AuthorName   string `json:"author_name,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
	HTML         string `json:"html,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	URL          string `json:"url,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Resolver looks URLs up against an oEmbed endpoint under a rate limit.
type Resolver struct {
	client   *resty.Client
	endpoint string
	limiter  *rate.Limiter
	log      zerolog.Logger
}

// NewResolver creates a resolver allowing perSecond lookups; zero or less means unlimited.
func NewResolver(endpoint string, perSecond float64, timeout time.Duration) *Resolver {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Resolver{
		client:   resty.New().SetTimeout(timeout),
		endpoint: endpoint,
		limiter:  rate.NewLimiter(limit, 1),
		log:      logger.Component("embed"),
	}
}

// Fetch returns oEmbed metadata for rawURL.
func (r *Resolver) Fetch(ctx context.Context, rawURL string) (*OEmbed, error) {
	if _, ok := Validate(rawURL); !ok {
		return nil, fmt.Errorf("%w: not an embeddable url: %q", apperr.ErrValidation, rawURL)
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var data OEmbed
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"url": rawURL, "format": "json"}).
		SetResult(&data).
		ForceContentType("application/json").
		Get(r.endpoint)
	if err != nil {
		return nil, fmt.Errorf("oembed lookup for %s: %w", rawURL, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("oembed lookup for %s: unexpected status %d", rawURL, resp.StatusCode())
	}
	if data.Error != "" {
		return nil, fmt.Errorf("oembed lookup for %s: %s", rawURL, data.Error)
	}
	if strings.TrimSpace(data.HTML) == "" {
		return nil, errors.New("oembed response has no html")
	}
	return &data, nil
}

// Render returns the markup for one embed and whether it was resolved. An
// unresolved embed becomes a plain link; a URL that is not http(s) becomes escaped text.
func (r *Resolver) Render(ctx context.Context, rawURL string, options map[string]string) (string, bool) {
	provider, ok := Validate(rawURL)
	if !ok {
		return html.EscapeString(rawURL), false
	}

	data, err := r.Fetch(ctx, rawURL)
	if err != nil {
		r.log.Warn().Err(err).Str("url", rawURL).Msg("Embed resolution failed, falling back to link")
		title := options["title"]
		return fallbackLink(rawURL, title), false
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<div class="embed embed-%s"%s>`, provider, dataAttributes(options))
	b.WriteString(data.HTML)
	b.WriteString(`</div>`)
	return b.String(), true
}

// Process replaces every directive in body. Text outside directives is unchanged.
func (r *Resolver) Process(ctx context.Context, body string) string {
	directives := Detect(body)
	if len(directives) == 0 {
		return body
	}

	var b strings.Builder
	last := 0
	for _, d := range directives {
		b.WriteString(body[last:d.Start])
		markup, _ := r.Render(ctx, d.URL, d.Options)
		b.WriteString(markup)
		last = d.End
	}
	b.WriteString(body[last:])
	return b.String()
}

func fallbackLink(rawURL, title string) string {
	if title == "" {
		title = rawURL
	}
	return fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(rawURL), html.EscapeString(title))
}

func dataAttributes(options map[string]string) string {
	if len(options) == 0 {
		return ""
	}
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, ` data-%s="%s"`, k, html.EscapeString(options[k]))
	}
	return b.String()
}
