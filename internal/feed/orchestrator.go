package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/bilgisen/synchronicity/internal/apperr"
	"github.com/bilgisen/synchronicity/internal/logger"
	"github.com/bilgisen/synchronicity/internal/metrics"
	"github.com/bilgisen/synchronicity/internal/models"
)

// Source returns the raw entries of a feed in feed order.
type Source interface {
	Fetch(ctx context.Context, baseURL string) ([]models.FeedEntry, error)
}

// SyncStatus describes the most recent sync pass.
type SyncStatus struct {
	LastRun  time.Time `json:"lastRun"`
	Duration string    `json:"duration"`
	Articles int       `json:"articles"`
	Dropped  int       `json:"dropped"`
	Error    string    `json:"error,omitempty"`
}

// Orchestrator runs fetch and extraction for a whole feed. Only one pass runs
// at a time; concurrent callers share the in-flight result.
type Orchestrator struct {
	source      Source
	extractor   *Extractor
	baseURL     string
	concurrency int
	timeout     time.Duration

	group  singleflight.Group
	mu     sync.RWMutex
	status SyncStatus
	log    zerolog.Logger
}

// NewOrchestrator creates an orchestrator for baseURL. A timeout of zero leaves
// the pass bounded only by the fetcher's own request timeout.
func NewOrchestrator(source Source, extractor *Extractor, baseURL string, concurrency int, timeout time.Duration) *Orchestrator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{
		source:      source,
		extractor:   extractor,
		baseURL:     baseURL,
		concurrency: concurrency,
		timeout:     timeout,
		log:         logger.Component("sync"),
	}
}

// Sync fetches the feed and extracts every entry. Entries that fail extraction
// are dropped; the rest keep feed order. A fetch failure wraps apperr.ErrSync.
//
// The pass runs detached from the caller's cancellation; a caller that gives up
// only stops waiting for it.
func (o *Orchestrator) Sync(ctx context.Context) ([]models.Article, error) {
	ch := o.group.DoChan("sync", func() (any, error) {
		runCtx := context.WithoutCancel(ctx)
		if o.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, o.timeout)
			defer cancel()
		}
		return o.run(runCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]models.Article), nil
	}
}

func (o *Orchestrator) run(ctx context.Context) ([]models.Article, error) {
	start := time.Now()
	o.log.Info().Str("source", o.baseURL).Msg("Starting feed sync")

	entries, err := o.source.Fetch(ctx, o.baseURL)
	if err != nil {
		o.finish(start, 0, 0, err)
		return nil, fmt.Errorf("%w: %w", apperr.ErrSync, err)
	}

	results := make([]*models.Article, len(entries))
	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, entry := range entries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			a, err := o.extractor.Extract(entry)
			if err != nil {
				o.log.Warn().Err(err).Str("link", entry.Link).Msg("Dropping feed entry")
				return nil
			}
			results[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		o.finish(start, 0, 0, err)
		return nil, fmt.Errorf("%w: %w", apperr.ErrSync, err)
	}

	articles := make([]models.Article, 0, len(results))
	seen := make(map[string]struct{}, len(results))
	dropped := 0
	for _, a := range results {
		if a == nil {
			dropped++
			continue
		}
		if _, dup := seen[a.ID]; dup {
			o.log.Warn().Str("id", a.ID).Msg("Duplicate article id in feed, keeping first")
			dropped++
			continue
		}
		seen[a.ID] = struct{}{}
		articles = append(articles, *a)
	}

	o.finish(start, len(articles), dropped, nil)
	o.log.Info().
		Int("articles", len(articles)).
		Int("dropped", dropped).
		Dur("duration", time.Since(start)).
		Msg("Feed sync completed")
	return articles, nil
}

func (o *Orchestrator) finish(start time.Time, articles, dropped int, err error) {
	elapsed := time.Since(start)

	status := "success"
	st := SyncStatus{
		LastRun:  start,
		Duration: elapsed.String(),
		Articles: articles,
		Dropped:  dropped,
	}
	if err != nil {
		status = "error"
		st.Error = err.Error()
		o.log.Error().Err(err).Msg("Feed sync failed")
	}
	metrics.RecordSync(status, elapsed.Seconds(), articles, dropped)

	o.mu.Lock()
	o.status = st
	o.mu.Unlock()
}

// SyncSingle re-extracts the one entry whose link matches articleURL.
// Merging the result into stored state is the caller's job.
func (o *Orchestrator) SyncSingle(ctx context.Context, articleURL string) (*models.Article, error) {
	entries, err := o.source.Fetch(ctx, o.baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrSync, err)
	}

	entry, ok := FindEntry(entries, articleURL)
	if !ok {
		return nil, fmt.Errorf("%w: no feed entry for %s", apperr.ErrNotFound, articleURL)
	}
	return o.extractor.Extract(entry)
}

// LastSync reports the outcome of the most recent pass.
func (o *Orchestrator) LastSync() SyncStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}
