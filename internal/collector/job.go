package collector

import (
	"context"
	"fmt"
	"time"

	"candler/internal/logger"
	"candler/internal/market"
	"candler/internal/store/gormstore"

	"github.com/google/uuid"
)

// FetchRequest bounds one upstream candle fetch. Start/End are
// milliseconds, zero means unbounded on that side.
type FetchRequest struct {
	Symbol   string
	Interval string
	Start    int64
	End      int64
	Limit    int
}

// Fetcher pulls candles from the upstream exchange.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) ([]market.Candle, error)
}

// Sink persists candles, skipping rows whose key already exists.
type Sink interface {
	InsertIgnore(ctx context.Context, candles []market.Candle) (int, error)
}

// CursorStore tracks per-pair collection positions.
type CursorStore interface {
	Cursor(ctx context.Context, symbol, interval string) (gormstore.Cursor, bool, error)
	AdvanceCursor(ctx context.Context, symbol, interval string, lastOpenTime int64) error
	ResetCursorStatus(ctx context.Context, symbol, interval string) error
	MarkCursorError(ctx context.Context, symbol, interval, msg string) error
}

// RunLogStore records one audit row per collection invocation.
type RunLogStore interface {
	AppendRunLog(ctx context.Context, rec gormstore.RunLog) error
}

// Job is one unit of collection work for a single pair.
type Job struct {
	Symbol   string
	Interval string
	Limit    int
	RunType  gormstore.RunType

	// Explicit window bounds for gap filling. When zero the runner
	// resolves the window from the cursor.
	Start int64
	End   int64

	// Done, when set, receives the job outcome after the run log and
	// cursor bookkeeping are complete.
	Done func(inserted int, err error)
}

// RunnerConfig wires a Runner.
type RunnerConfig struct {
	Fetcher       Fetcher
	Sink          Sink
	Cursors       CursorStore
	RunLogs       RunLogStore
	BatchLimit    int
	BootstrapDays int
}

// Runner executes collection jobs: it resolves the fetch window from the
// pair's cursor, pulls candles, drops the still-open bar, persists the
// rest and advances the cursor. Every invocation leaves exactly one run
// log row behind, success or not.
type Runner struct {
	fetcher       Fetcher
	sink          Sink
	cursors       CursorStore
	runLogs       RunLogStore
	batchLimit    int
	bootstrapDays int

	nowFn func() time.Time
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Fetcher == nil || cfg.Sink == nil || cfg.Cursors == nil || cfg.RunLogs == nil {
		return nil, fmt.Errorf("runner requires fetcher, sink, cursor store and run log store")
	}
	batch := cfg.BatchLimit
	if batch <= 0 || batch > 1000 {
		batch = 1000
	}
	days := cfg.BootstrapDays
	if days <= 0 {
		days = 30
	}
	return &Runner{
		fetcher:       cfg.Fetcher,
		sink:          cfg.Sink,
		cursors:       cfg.Cursors,
		runLogs:       cfg.RunLogs,
		batchLimit:    batch,
		bootstrapDays: days,
		nowFn:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run collects one batch for job's pair and returns how many candles were
// newly persisted.
func (r *Runner) Run(ctx context.Context, job Job) (int, error) {
	runType := job.RunType
	if runType == "" {
		runType = gormstore.RunTypeSingle
	}
	started := r.nowFn()
	rec := gormstore.RunLog{
		RunID:    uuid.NewString(),
		Symbol:   job.Symbol,
		Interval: job.Interval,
		RunType:  runType,
	}

	inserted, err := r.collect(ctx, job, &rec)
	rec.Records = inserted
	rec.ExecutionMS = r.nowFn().Sub(started).Milliseconds()
	if err != nil {
		rec.Status = "error"
		rec.ErrorMsg = err.Error()
	} else {
		rec.Status = "success"
	}
	if logErr := r.runLogs.AppendRunLog(ctx, rec); logErr != nil {
		logger.Warnf("[collector] run log write failed for %s %s: %v", job.Symbol, job.Interval, logErr)
	}
	if job.Done != nil {
		job.Done(inserted, err)
	}
	return inserted, err
}

func (r *Runner) collect(ctx context.Context, job Job, rec *gormstore.RunLog) (int, error) {
	intervalMs, ok := market.IntervalMillis(job.Interval)
	if !ok {
		return 0, fmt.Errorf("unsupported interval %q", job.Interval)
	}
	now := r.nowFn()
	nowMs := now.UnixMilli()

	start, end := job.Start, job.End
	if end <= 0 {
		end = nowMs
	}
	if start <= 0 {
		cur, found, err := r.cursors.Cursor(ctx, job.Symbol, job.Interval)
		if err != nil {
			return 0, r.fail(ctx, job, fmt.Errorf("loading cursor: %w", err))
		}
		if found && cur.LastCollected != nil {
			start = *cur.LastCollected + intervalMs
		} else {
			start = nowMs - int64(r.bootstrapDays)*86_400_000
		}
	}
	rec.StartTime = start
	rec.EndTime = end

	// The pair is already up to date; nothing to fetch is a success.
	if start >= end {
		return 0, nil
	}

	limit := job.Limit
	if limit <= 0 || limit > r.batchLimit {
		limit = r.batchLimit
	}
	candles, err := r.fetcher.Fetch(ctx, FetchRequest{
		Symbol:   job.Symbol,
		Interval: job.Interval,
		Start:    start,
		End:      end,
		Limit:    limit,
	})
	if err != nil {
		return 0, r.fail(ctx, job, fmt.Errorf("fetching candles: %w", err))
	}

	candles = market.DropUnclosed(candles, now)
	if len(candles) == 0 {
		if err := r.cursors.ResetCursorStatus(ctx, job.Symbol, job.Interval); err != nil {
			logger.Warnf("[collector] cursor reset failed for %s %s: %v", job.Symbol, job.Interval, err)
		}
		return 0, nil
	}

	inserted, err := r.sink.InsertIgnore(ctx, candles)
	if err != nil {
		return 0, r.fail(ctx, job, fmt.Errorf("persisting candles: %w", err))
	}

	// The cursor moves to the newest persisted candle even when every row
	// was a duplicate: those open times are durably stored either way.
	lastOpen := market.MaxOpenTime(candles)
	if err := r.cursors.AdvanceCursor(ctx, job.Symbol, job.Interval, lastOpen); err != nil {
		return inserted, r.fail(ctx, job, fmt.Errorf("advancing cursor: %w", err))
	}
	logger.Debugf("[collector] %s %s fetched=%d inserted=%d cursor=%d",
		job.Symbol, job.Interval, len(candles), inserted, lastOpen)
	return inserted, nil
}

// fail records the error on the pair's cursor and passes err through.
func (r *Runner) fail(ctx context.Context, job Job, err error) error {
	if markErr := r.cursors.MarkCursorError(ctx, job.Symbol, job.Interval, err.Error()); markErr != nil {
		logger.Warnf("[collector] cursor error mark failed for %s %s: %v", job.Symbol, job.Interval, markErr)
	}
	return err
}
