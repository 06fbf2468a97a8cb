package collector

import (
	"context"
	"fmt"

	"candler/internal/logger"
	"candler/internal/market"
	"candler/internal/store/gormstore"
)

// Backfill walks [now - daysBack days, now) for one pair in sequential
// windows of batchLimit candles each. Every window carries explicit bounds
// so the cursor state never decides what a fill fetches; windows abut with
// no overlap and no holes.
func (r *Runner) Backfill(ctx context.Context, symbol, interval string, daysBack int) (Report, error) {
	report := Report{Interval: interval, Symbols: 1}
	intervalMs, ok := market.IntervalMillis(interval)
	if !ok {
		return report, fmt.Errorf("unsupported interval %q", interval)
	}
	if daysBack <= 0 {
		daysBack = r.bootstrapDays
	}
	started := r.nowFn()
	end := started.UnixMilli()
	start := end - int64(daysBack)*86_400_000
	width := int64(r.batchLimit) * intervalMs

	logger.Infof("[backfill] %s %s covering [%d, %d) in %d-candle windows",
		symbol, interval, start, end, r.batchLimit)
	for cursor := start; cursor < end; {
		if err := ctx.Err(); err != nil {
			report.Duration = r.nowFn().Sub(started)
			return report, err
		}
		windowEnd := cursor + width
		if windowEnd > end {
			windowEnd = end
		}
		inserted, err := r.Run(ctx, Job{
			Symbol:   symbol,
			Interval: interval,
			RunType:  gormstore.RunTypeGapFill,
			Start:    cursor,
			End:      windowEnd,
			Limit:    r.batchLimit,
		})
		if err != nil {
			report.Errors++
			logger.Warnf("[backfill] %s %s window [%d, %d) failed: %v",
				symbol, interval, cursor, windowEnd, err)
		} else {
			report.Collected += inserted
		}
		cursor = windowEnd
	}
	report.Duration = r.nowFn().Sub(started)
	logger.Infof("[backfill] %s %s done: collected=%d errors=%d in %s",
		symbol, interval, report.Collected, report.Errors, report.Duration)
	return report, nil
}
