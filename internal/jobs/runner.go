// Package jobs runs best-effort background work (image optimization, backfills)
// outside the request path, retrying each job with exponential backoff.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/bilgisen/synchronicity/internal/logger"
	"github.com/bilgisen/synchronicity/internal/metrics"
)

// ErrStopped is returned by Stop when called twice.
var ErrStopped = errors.New("job runner stopped")

// Job is one unit of background work. Jobs sharing a non-empty Key are
// collapsed while one of them is queued or running. OnFailure, if set, runs
// once after the last attempt failed.
type Job struct {
	Kind      string
	Key       string
	Run       func(ctx context.Context) error
	OnFailure func(ctx context.Context, err error)
}

// Config configures a Runner.
type Config struct {
	Workers         int
	QueueSize       int
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Runner executes jobs on a fixed pool of workers.
type Runner struct {
	cfg   Config
	queue chan Job

	mu      sync.Mutex
	pending map[string]struct{}
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    zerolog.Logger
}

// NewRunner creates a runner; call Start to begin processing.
func NewRunner(cfg Config) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 256
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cfg:     cfg,
		queue:   make(chan Job, cfg.QueueSize),
		pending: make(map[string]struct{}),
		ctx:     ctx,
		cancel:  cancel,
		log:     logger.Component("jobs"),
	}
}

// Start launches the workers. Use Stop to end them.
func (r *Runner) Start() {
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for job := range r.queue {
				r.execute(job)
			}
		}()
	}
	r.log.Info().Int("workers", r.cfg.Workers).Msg("Job runner started")
}

// Enqueue queues a job without blocking and reports whether it was accepted.
// A job whose key is already pending is not queued twice.
func (r *Runner) Enqueue(job Job) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return false
	}
	if job.Key != "" {
		if _, dup := r.pending[job.Key]; dup {
			return false
		}
	}

	select {
	case r.queue <- job:
		if job.Key != "" {
			r.pending[job.Key] = struct{}{}
		}
		return true
	default:
		r.log.Warn().Str("kind", job.Kind).Str("key", job.Key).Msg("Job queue full, dropping job")
		metrics.RecordJob(job.Kind, "dropped")
		return false
	}
}

// Stop stops accepting jobs and waits for queued ones to finish. If ctx ends
// first, running jobs are cancelled and ctx's error is returned.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrStopped
	}
	r.stopped = true
	close(r.queue)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		return ctx.Err()
	}
}

func (r *Runner) execute(job Job) {
	defer r.release(job.Key)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.InitialInterval
	bo.MaxInterval = r.cfg.MaxInterval
	bo.Multiplier = 2

	attempts := 0
	_, err := backoff.Retry(r.ctx, func() (struct{}, error) {
		attempts++
		return struct{}{}, r.safeRun(job)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(r.cfg.MaxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.log.Debug().Err(err).Str("kind", job.Kind).Dur("retry_in", wait).Msg("Job attempt failed")
		}),
	)

	if err != nil {
		r.log.Error().Err(err).Str("kind", job.Kind).Str("key", job.Key).Int("attempts", attempts).Msg("Job failed")
		metrics.RecordJob(job.Kind, "failed")
		if job.OnFailure != nil {
			job.OnFailure(r.ctx, err)
		}
		return
	}
	metrics.RecordJob(job.Kind, "succeeded")
}

func (r *Runner) safeRun(job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = backoff.Permanent(fmt.Errorf("job %s panicked: %v", job.Kind, rec))
		}
	}()
	return job.Run(r.ctx)
}

func (r *Runner) release(key string) {
	if key == "" {
		return
	}
	r.mu.Lock()
	delete(r.pending, key)
	r.mu.Unlock()
}
