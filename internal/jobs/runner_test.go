package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Workers:         2,
		QueueSize:       8,
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func TestRunnerExecutesJobs(t *testing.T) {
	r := NewRunner(testConfig())
	r.Start()

	var ran atomic.Int32
	for range 5 {
		require.True(t, r.Enqueue(Job{Kind: "test", Run: func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}}))
	}

	require.NoError(t, r.Stop(context.Background()))
	assert.Equal(t, int32(5), ran.Load())
}

func TestRunnerRetriesUntilSuccess(t *testing.T) {
	r := NewRunner(testConfig())
	r.Start()

	var attempts atomic.Int32
	r.Enqueue(Job{Kind: "flaky", Run: func(ctx context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("not yet")
		}
		return nil
	}})

	require.NoError(t, r.Stop(context.Background()))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRunnerGivesUpAfterMaxRetries(t *testing.T) {
	r := NewRunner(testConfig())
	r.Start()

	var attempts atomic.Int32
	r.Enqueue(Job{Kind: "broken", Run: func(ctx context.Context) error {
		attempts.Add(1)
		return errors.New("always")
	}})

	require.NoError(t, r.Stop(context.Background()))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRunnerCallsOnFailureOnce(t *testing.T) {
	r := NewRunner(testConfig())
	r.Start()

	var failures atomic.Int32
	var lastErr atomic.Value
	r.Enqueue(Job{
		Kind: "broken",
		Run:  func(ctx context.Context) error { return errors.New("always") },
		OnFailure: func(ctx context.Context, err error) {
			failures.Add(1)
			lastErr.Store(err.Error())
		},
	})
	r.Enqueue(Job{
		Kind:      "fine",
		Run:       func(ctx context.Context) error { return nil },
		OnFailure: func(ctx context.Context, err error) { failures.Add(100) },
	})

	require.NoError(t, r.Stop(context.Background()))
	assert.Equal(t, int32(1), failures.Load())
	assert.Equal(t, "always", lastErr.Load())
}

func TestRunnerRecoversPanics(t *testing.T) {
	r := NewRunner(testConfig())
	r.Start()

	var attempts atomic.Int32
	r.Enqueue(Job{Kind: "panics", Run: func(ctx context.Context) error {
		attempts.Add(1)
		panic("boom")
	}})
	var after atomic.Bool
	r.Enqueue(Job{Kind: "after", Run: func(ctx context.Context) error {
		after.Store(true)
		return nil
	}})

	require.NoError(t, r.Stop(context.Background()))
	assert.Equal(t, int32(1), attempts.Load(), "panics are not retried")
	assert.True(t, after.Load())
}

func TestEnqueueDeduplicatesPendingKeys(t *testing.T) {
	r := NewRunner(testConfig())

	noop := func(ctx context.Context) error { return nil }
	assert.True(t, r.Enqueue(Job{Kind: "image", Key: "image:a", Run: noop}))
	assert.False(t, r.Enqueue(Job{Kind: "image", Key: "image:a", Run: noop}))
	assert.True(t, r.Enqueue(Job{Kind: "image", Key: "image:b", Run: noop}))

	r.Start()
	require.NoError(t, r.Stop(context.Background()))
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	cfg := testConfig()
	cfg.QueueSize = 1
	r := NewRunner(cfg)

	noop := func(ctx context.Context) error { return nil }
	assert.True(t, r.Enqueue(Job{Kind: "a", Run: noop}))
	assert.False(t, r.Enqueue(Job{Kind: "b", Run: noop}))

	r.Start()
	require.NoError(t, r.Stop(context.Background()))
}

func TestStopRejectsNewJobs(t *testing.T) {
	r := NewRunner(testConfig())
	r.Start()
	require.NoError(t, r.Stop(context.Background()))

	assert.False(t, r.Enqueue(Job{Kind: "late", Run: func(ctx context.Context) error { return nil }}))
	assert.ErrorIs(t, r.Stop(context.Background()), ErrStopped)
}

func TestStopTimesOutAndCancelsJobs(t *testing.T) {
	r := NewRunner(testConfig())
	r.Start()

	started := make(chan struct{})
	r.Enqueue(Job{Kind: "slow", Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Stop(ctx), context.DeadlineExceeded)
}
