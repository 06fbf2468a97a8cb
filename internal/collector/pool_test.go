package collector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candler/internal/market"
)

// blockingFetcher holds every fetch until released so tests can observe
// in-flight jobs.
type blockingFetcher struct {
	mu      sync.Mutex
	active  int32
	peak    int32
	release chan struct{}
	err     error
}

func newBlockingFetcher() *blockingFetcher {
	return &blockingFetcher{release: make(chan struct{})}
}

func (f *blockingFetcher) Fetch(ctx context.Context, _ FetchRequest) ([]market.Candle, error) {
	cur := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	f.mu.Lock()
	if cur > f.peak {
		f.peak = cur
	}
	f.mu.Unlock()
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return nil, f.err
}

func (f *blockingFetcher) peakConcurrency() int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

func TestPoolRunsQueuedJobs(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{}
	control := newFakeControl()
	r := newTestRunner(t, fetcher, newFakeSink(), control, now)

	q := NewQueue()
	pool := NewPool(q, r, 2)
	pool.Start(context.Background())

	var wg sync.WaitGroup
	for _, sym := range []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"} {
		wg.Add(1)
		q.Push(Job{Symbol: sym, Interval: "1h", Done: func(int, error) { wg.Done() }})
	}
	wg.Wait()
	pool.Shutdown(time.Second)

	require.Len(t, control.runLogs, 3)
}

func TestPoolConcurrencyBound(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fetcher := newBlockingFetcher()
	control := newFakeControl()
	runner, err := NewRunner(RunnerConfig{
		Fetcher: fetcher, Sink: newFakeSink(), Cursors: control, RunLogs: control,
	})
	require.NoError(t, err)
	runner.nowFn = func() time.Time { return now }

	q := NewQueue()
	pool := NewPool(q, runner, 2)
	pool.Start(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		q.Push(Job{Symbol: "BTCUSDT", Interval: "1h", Done: func(int, error) { wg.Done() }})
	}
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, fetcher.peakConcurrency(), int32(2))

	close(fetcher.release)
	wg.Wait()
	pool.Shutdown(time.Second)
	assert.Equal(t, int32(2), fetcher.peakConcurrency())
}

func TestPoolFailureIsolation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	control := newFakeControl()
	boom := errors.New("exchange down")
	runner, err := NewRunner(RunnerConfig{
		Fetcher: &fakeFetcher{err: boom},
		Sink:    newFakeSink(),
		Cursors: control,
		RunLogs: control,
	})
	require.NoError(t, err)
	runner.nowFn = func() time.Time { return now }

	q := NewQueue()
	pool := NewPool(q, runner, 1)
	pool.Start(context.Background())

	var wg sync.WaitGroup
	outcomes := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		i := i
		q.Push(Job{Symbol: "BTCUSDT", Interval: "1h", Done: func(_ int, err error) {
			outcomes[i] = err
			wg.Done()
		}})
	}
	wg.Wait()
	pool.Shutdown(time.Second)

	// One job failing never stops the worker from taking the next one.
	for _, err := range outcomes {
		require.Error(t, err)
	}
	assert.Len(t, control.runLogs, 3)
}

func TestPoolShutdownWaitsForInflight(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fetcher := newBlockingFetcher()
	control := newFakeControl()
	runner, err := NewRunner(RunnerConfig{
		Fetcher: fetcher, Sink: newFakeSink(), Cursors: control, RunLogs: control,
	})
	require.NoError(t, err)
	runner.nowFn = func() time.Time { return now }

	q := NewQueue()
	pool := NewPool(q, runner, 1)
	pool.Start(context.Background())

	done := make(chan struct{})
	q.Push(Job{Symbol: "BTCUSDT", Interval: "1h", Done: func(int, error) { close(done) }})
	time.Sleep(30 * time.Millisecond)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(fetcher.release)
	}()
	pool.Shutdown(2 * time.Second)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("in-flight job was not allowed to finish")
	}
	require.Len(t, control.runLogs, 1)
	assert.Equal(t, "success", control.runLogs[0].Status)
}

func TestPoolShutdownDeadlineCancelsJobs(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fetcher := newBlockingFetcher()
	control := newFakeControl()
	runner, err := NewRunner(RunnerConfig{
		Fetcher: fetcher, Sink: newFakeSink(), Cursors: control, RunLogs: control,
	})
	require.NoError(t, err)
	runner.nowFn = func() time.Time { return now }

	q := NewQueue()
	pool := NewPool(q, runner, 1)
	pool.Start(context.Background())

	var gotErr error
	done := make(chan struct{})
	q.Push(Job{Symbol: "BTCUSDT", Interval: "1h", Done: func(_ int, err error) {
		gotErr = err
		close(done)
	}})
	time.Sleep(30 * time.Millisecond)

	// Never release the fetch; the drain deadline has to cut the job loose.
	pool.Shutdown(100 * time.Millisecond)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled job never completed")
	}
	require.ErrorIs(t, gotErr, context.Canceled)
}
