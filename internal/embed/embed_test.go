package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bilgisen/synchronicity/internal/apperr"
)

func oembedServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		target := r.URL.Query().Get("url")
		switch {
		case strings.Contains(target, "youtube.com"):
			_ = json.NewEncoder(w).Encode(OEmbed{
				Type:         "video",
				Title:        "A video",
				ProviderName: "YouTube",
				HTML:         `<iframe src="https://www.youtube.com/embed/abc"></iframe>`,
			})
		case strings.Contains(target, "nomatch.example.com"):
			_ = json.NewEncoder(w).Encode(OEmbed{Error: "no matching providers found"})
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDetect(t *testing.T) {
	body := `intro ::embed[https://youtu.be/x] text ::embed[ https://vimeo.com/1 ]{title="My clip" autoplay=1} end`

	got := Detect(body)

	require.Len(t, got, 2)
	assert.Equal(t, "https://youtu.be/x", got[0].URL)
	assert.Nil(t, got[0].Options)
	assert.Equal(t, "::embed[https://youtu.be/x]", body[got[0].Start:got[0].End])
	assert.Equal(t, "https://vimeo.com/1", got[1].URL)
	assert.Equal(t, map[string]string{"title": "My clip", "autoplay": "1"}, got[1].Options)

	assert.Empty(t, Detect("no directives, just ::embed without brackets"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		url      string
		provider string
		ok       bool
	}{
		{"https://www.youtube.com/watch?v=abc", "youtube", true},
		{"https://youtu.be/abc", "youtube", true},
		{"https://x.com/user/status/1", "twitter", true},
		{"https://open.spotify.com/track/1", "spotify", true},
		{"https://codepen.io/a/pen/b", "codepen", true},
		{"https://example.com/page", "generic", true},
		{"javascript:alert(1)", "", false},
		{"/relative/path", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		provider, ok := Validate(tt.url)
		assert.Equal(t, tt.provider, provider, tt.url)
		assert.Equal(t, tt.ok, ok, tt.url)
	}
}

func TestProcessSubstitutesAndFallsBack(t *testing.T) {
	srv := oembedServer(t, nil)
	r := NewResolver(srv.URL, 0, 5*time.Second)

	body := "# Title\n\n::embed[https://www.youtube.com/watch?v=abc]\n\nMiddle text.\n\n" +
		`::embed[https://broken.example.com/post]{title="Read <this>"}` + "\n\nTail."

	got := r.Process(context.Background(), body)

	want := "# Title\n\n" +
		`<div class="embed embed-youtube"><iframe src="https://www.youtube.com/embed/abc"></iframe></div>` +
		"\n\nMiddle text.\n\n" +
		`<a href="https://broken.example.com/post">Read &lt;this&gt;</a>` +
		"\n\nTail."
	assert.Equal(t, want, got)
}

func TestProcessWithoutDirectivesIsIdentity(t *testing.T) {
	var calls atomic.Int32
	srv := oembedServer(t, &calls)
	r := NewResolver(srv.URL, 0, time.Second)

	body := "plain ::embed text with [brackets] and {braces}"
	assert.Equal(t, body, r.Process(context.Background(), body))
	assert.Zero(t, calls.Load())
}

func TestRenderOptionsAndUnsafeURLs(t *testing.T) {
	srv := oembedServer(t, nil)
	r := NewResolver(srv.URL, 0, time.Second)

	html, ok := r.Render(context.Background(), "https://youtube.com/watch?v=1", map[string]string{"width": "640"})
	assert.True(t, ok)
	assert.True(t, strings.HasPrefix(html, `<div class="embed embed-youtube" data-width="640">`))

	html, ok = r.Render(context.Background(), `javascript:alert("x")`, nil)
	assert.False(t, ok)
	assert.Equal(t, "javascript:alert(&#34;x&#34;)", html)

	html, ok = r.Render(context.Background(), "https://nomatch.example.com/a", nil)
	assert.False(t, ok)
	assert.Equal(t, `<a href="https://nomatch.example.com/a">https://nomatch.example.com/a</a>`, html)
}

func TestFetch(t *testing.T) {
	srv := oembedServer(t, nil)
	r := NewResolver(srv.URL, 100, time.Second)

	data, err := r.Fetch(context.Background(), "https://www.youtube.com/watch?v=abc")
	require.NoError(t, err)
	assert.Equal(t, "YouTube", data.ProviderName)
	assert.Equal(t, "A video", data.Title)

	_, err = r.Fetch(context.Background(), "ftp://example.com/file")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = r.Fetch(context.Background(), "https://broken.example.com")
	assert.Error(t, err)
}

func TestFetchHonoursContextWhileRateLimited(t *testing.T) {
	srv := oembedServer(t, nil)
	r := NewResolver(srv.URL, 0.001, time.Second)

	_, err := r.Fetch(context.Background(), "https://www.youtube.com/watch?v=abc")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = r.Fetch(ctx, "https://www.youtube.com/watch?v=abc")
	assert.Error(t, err)
}
