package images

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bilgisen/synchronicity/internal/cache"
	"github.com/bilgisen/synchronicity/internal/jobs"
	"github.com/bilgisen/synchronicity/internal/models"
	"github.com/bilgisen/synchronicity/internal/storage"
)

type memoryUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memoryUploader) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[key] = append([]byte{}, data...)
	return "https://cdn.example.com/" + key, nil
}

// stripes is a wide image with red, green and blue vertical bands.
func stripes(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		c := color.RGBA{G: 255, A: 255}
		switch {
		case x < width/4:
			c = color.RGBA{R: 255, A: 255}
		case x >= width*3/4:
			c = color.RGBA{B: 255, A: 255}
		}
		for y := 0; y < height; y++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func imageServer(t *testing.T, status int, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCoverFitCropsCentre(t *testing.T) {
	dst := CoverFit(stripes(400, 100), 100, 100)

	assert.Equal(t, image.Rect(0, 0, 100, 100), dst.Bounds())
	r, g, b, _ := dst.At(50, 50).RGBA()
	assert.Zero(t, r)
	assert.Equal(t, uint32(0xffff), g)
	assert.Zero(t, b)

	// the red and blue bands lie outside the centre crop
	r, _, _, _ = dst.At(1, 50).RGBA()
	assert.Less(t, r, uint32(0x8000))
}

func TestCoverFitTallSource(t *testing.T) {
	tall := image.NewRGBA(image.Rect(0, 0, 50, 300))
	dst := CoverFit(tall, 400, 300)
	assert.Equal(t, image.Rect(0, 0, 400, 300), dst.Bounds())

	empty := CoverFit(image.NewRGBA(image.Rect(0, 0, 0, 0)), 10, 10)
	assert.Equal(t, image.Rect(0, 0, 10, 10), empty.Bounds())
}

func TestOptimizeUploadsEveryTier(t *testing.T) {
	srv := imageServer(t, http.StatusOK, encodePNG(t, stripes(1600, 900)))
	up := &memoryUploader{}

	got, err := NewOptimizer(up, 5*time.Second).Optimize(context.Background(), srv.URL+"/img.png", "post-1")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		models.TierThumbnail: "https://cdn.example.com/articles/post-1_thumbnail.jpg",
		models.TierCard:      "https://cdn.example.com/articles/post-1_card.jpg",
		models.TierHero:      "https://cdn.example.com/articles/post-1_hero.jpg",
	}, got)

	for _, tier := range Tiers {
		data := up.objects["articles/post-1_"+tier.Name+".jpg"]
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
		require.NoError(t, err, tier.Name)
		assert.Equal(t, tier.Width, cfg.Width)
		assert.Equal(t, tier.Height, cfg.Height)
	}
}

func TestOptimizeDegradesOnFailure(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   []byte
	}{
		{"not found", http.StatusNotFound, nil},
		{"not an image", http.StatusOK, []byte("<html>nope</html>")},
		{"empty body", http.StatusOK, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := imageServer(t, tt.status, tt.body)
			url := srv.URL + "/img.png"

			got, err := NewOptimizer(&memoryUploader{}, 5*time.Second).Optimize(context.Background(), url, "p")
			assert.Error(t, err)
			assert.Equal(t, map[string]string{models.TierCard: url}, got)
		})
	}
}

func TestDisabledOptimizer(t *testing.T) {
	o := NewOptimizer(nil, time.Second)
	assert.False(t, o.Enabled())

	got, err := o.Optimize(context.Background(), "https://img/x.png", "p")
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Equal(t, Degraded("https://img/x.png"), got)
}

func TestS3UploaderPutsObject(t *testing.T) {
	var (
		method, path, contentType string
		body                      []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path, contentType = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	up, err := NewS3Uploader(context.Background(), R2Config{
		Endpoint:  srv.URL,
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "media",
		PublicURL: "https://pub.example.com/",
	})
	require.NoError(t, err)

	url, err := up.Upload(context.Background(), "articles/a_card.jpg", []byte("jpeg-bytes"), "image/jpeg")
	require.NoError(t, err)

	assert.Equal(t, "https://pub.example.com/articles/a_card.jpg", url)
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/media/articles/a_card.jpg", path)
	assert.Equal(t, "image/jpeg", contentType)
	assert.Equal(t, []byte("jpeg-bytes"), body)
}

func newScheduler(t *testing.T, up Uploader, imageURL string) (*Scheduler, *jobs.Runner, *storage.MemoryStore, *cache.MemoryCache) {
	t.Helper()
	store, err := storage.NewMemoryStore("")
	require.NoError(t, err)
	require.NoError(t, store.ReplaceAll(context.Background(), []models.Article{
		{ID: "a", ImageURL: imageURL},
		{ID: "done", ImageURL: imageURL, OptimizedImages: map[string]string{
			models.TierThumbnail: "t", models.TierCard: "c", models.TierHero: "h",
		}},
	}, storage.RetainMissing))

	runner := jobs.NewRunner(jobs.Config{
		Workers:         1,
		MaxRetries:      1,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	})
	c := cache.NewMemoryCache()
	return NewScheduler(NewOptimizer(up, 5*time.Second), runner, store, c), runner, store, c
}

func TestSchedulerStoresVariants(t *testing.T) {
	ctx := context.Background()
	srv := imageServer(t, http.StatusOK, encodePNG(t, stripes(900, 700)))
	s, runner, store, c := newScheduler(t, &memoryUploader{}, srv.URL+"/a.png")
	require.NoError(t, c.Set(ctx, "articles:all:none:50:0", "stale", time.Minute))

	queued, err := s.Backfill(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, queued, "fully optimized articles are skipped")

	runner.Start()
	require.NoError(t, runner.Stop(ctx))

	a, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, a.OptimizedImages, 3)
	assert.False(t, NeedsOptimization(*a))

	var stale string
	hit, err := c.Get(ctx, "articles:all:none:50:0", &stale)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestSchedulerStoresDegradedMappingAfterRetries(t *testing.T) {
	ctx := context.Background()
	srv := imageServer(t, http.StatusInternalServerError, nil)
	url := srv.URL + "/a.png"
	s, runner, store, _ := newScheduler(t, &memoryUploader{}, url)

	runner.Start()
	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Schedule(all))
	require.NoError(t, runner.Stop(ctx))

	a, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, Degraded(url), a.OptimizedImages)
	assert.True(t, NeedsOptimization(*a), "degraded articles are retried by the next backfill")
}

func TestSchedulerDisabled(t *testing.T) {
	s, _, _, _ := newScheduler(t, nil, "https://img/x.png")

	assert.Zero(t, s.Schedule([]models.Article{{ID: "a"}}))
	_, err := s.Backfill(context.Background())
	assert.ErrorIs(t, err, ErrDisabled)
}
