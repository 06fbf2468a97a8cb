package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"candler/internal/logger"
	"candler/internal/market"
)

// SymbolSource yields the symbols a sweep should cover.
type SymbolSource interface {
	List(ctx context.Context) ([]string, error)
	Name() string
}

// Report aggregates one sweep's outcome.
type Report struct {
	Interval  string
	Symbols   int
	Skipped   int
	Collected int
	Errors    int
	Duration  time.Duration
}

// SchedulerConfig wires a Scheduler.
type SchedulerConfig struct {
	Queue        *Queue
	Pool         *Pool
	Symbols      SymbolSource
	DrainTimeout time.Duration
}

// Scheduler fans pair jobs out to the worker pool. A pair is never queued
// while a previous job for the same symbol@interval is still in flight.
type Scheduler struct {
	queue        *Queue
	pool         *Pool
	symbols      SymbolSource
	drainTimeout time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}

	nowFn func() time.Time
}

func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Queue == nil || cfg.Pool == nil || cfg.Symbols == nil {
		return nil, fmt.Errorf("scheduler requires queue, pool and symbol source")
	}
	drain := cfg.DrainTimeout
	if drain <= 0 {
		drain = 60 * time.Second
	}
	return &Scheduler{
		queue:        cfg.Queue,
		pool:         cfg.Pool,
		symbols:      cfg.Symbols,
		drainTimeout: drain,
		inflight:     make(map[string]struct{}),
		nowFn:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Sweep queues one job per symbol for interval and waits for all of them.
func (s *Scheduler) Sweep(ctx context.Context, interval string, limit int) (Report, error) {
	started := s.nowFn()
	report := Report{Interval: interval}
	syms, err := s.symbols.List(ctx)
	if err != nil {
		return report, fmt.Errorf("listing symbols (%s): %w", s.symbols.Name(), err)
	}
	report.Symbols = len(syms)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, symbol := range syms {
		key := pairKey(symbol, interval)
		if !s.acquire(key) {
			mu.Lock()
			report.Skipped++
			mu.Unlock()
			continue
		}
		wg.Add(1)
		s.queue.Push(Job{
			Symbol:   symbol,
			Interval: interval,
			Limit:    limit,
			Done: func(inserted int, err error) {
				mu.Lock()
				if err != nil {
					report.Errors++
				} else {
					report.Collected += inserted
				}
				mu.Unlock()
				s.release(key)
				wg.Done()
			},
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		<-done
	}
	report.Duration = s.nowFn().Sub(started)
	logger.Infof("[scheduler] sweep %s: symbols=%d skipped=%d collected=%d errors=%d in %s",
		interval, report.Symbols, report.Skipped, report.Collected, report.Errors, report.Duration)
	return report, nil
}

// Continuous sweeps each interval on its own cadence until ctx ends, then
// drains the pool within the configured timeout. The first sweep of every
// interval fires immediately.
func (s *Scheduler) Continuous(ctx context.Context, intervals []string, limit int) error {
	if len(intervals) == 0 {
		return fmt.Errorf("continuous mode requires at least one interval")
	}
	for _, iv := range intervals {
		if market.NormalizeInterval(iv) == "" {
			return fmt.Errorf("unsupported interval %q", iv)
		}
	}

	var wg sync.WaitGroup
	for _, interval := range intervals {
		wg.Add(1)
		go func(interval string) {
			defer wg.Done()
			s.sweepLoop(ctx, interval, limit)
		}(interval)
	}
	wg.Wait()
	s.pool.Shutdown(s.drainTimeout)
	return nil
}

func (s *Scheduler) sweepLoop(ctx context.Context, interval string, limit int) {
	cadence := market.PollCadence(interval)
	logger.Infof("[scheduler] %s loop started, cadence %s", interval, cadence)
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()
	for {
		if _, err := s.Sweep(ctx, interval, limit); err != nil {
			logger.Errorf("[scheduler] sweep %s: %v", interval, err)
		}
		select {
		case <-ctx.Done():
			logger.Infof("[scheduler] %s loop stopping", interval)
			return
		case <-ticker.C:
		}
	}
}

func pairKey(symbol, interval string) string {
	return symbol + "@" + interval
}

func (s *Scheduler) acquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Scheduler) release(key string) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}

// InflightCount reports how many pair jobs are currently queued or running.
func (s *Scheduler) InflightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}
