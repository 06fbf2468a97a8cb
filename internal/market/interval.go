package market

import (
	"strconv"
	"strings"
	"time"
)

// intervalMillis enumerates the Binance kline intervals this service accepts.
// "1M" (calendar month) is approximated as 30 days for window arithmetic.
var intervalMillis = map[string]int64{
	"1m":  60_000,
	"3m":  3 * 60_000,
	"5m":  5 * 60_000,
	"15m": 15 * 60_000,
	"30m": 30 * 60_000,
	"1h":  3_600_000,
	"2h":  2 * 3_600_000,
	"4h":  4 * 3_600_000,
	"6h":  6 * 3_600_000,
	"8h":  8 * 3_600_000,
	"12h": 12 * 3_600_000,
	"1d":  86_400_000,
	"3d":  3 * 86_400_000,
	"1w":  7 * 86_400_000,
	"1M":  30 * 86_400_000,
}

// NormalizeInterval canonicalizes interval spelling ("1M" keeps its case,
// everything else is lowered). Returns "" for unknown intervals.
func NormalizeInterval(interval string) string {
	interval = strings.TrimSpace(interval)
	if interval == "1M" {
		return interval
	}
	interval = strings.ToLower(interval)
	if _, ok := intervalMillis[interval]; !ok {
		return ""
	}
	return interval
}

// IntervalMillis returns the width of one candle in milliseconds.
func IntervalMillis(interval string) (int64, bool) {
	ms, ok := intervalMillis[NormalizeInterval(interval)]
	return ms, ok
}

// IntervalDuration returns the width of one candle as a time.Duration.
func IntervalDuration(interval string) (time.Duration, bool) {
	ms, ok := IntervalMillis(interval)
	if !ok {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

// ParseIntervalDuration parses free-form strings like "15m", "1h", "4h",
// "1d", "1w" into a duration without consulting the interval table.
// Returns (0, false) on invalid input.
func ParseIntervalDuration(interval string) (time.Duration, bool) {
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return 0, false
	}
	unit := interval[len(interval)-1]
	numStr := strings.TrimSpace(interval[:len(interval)-1])
	if numStr == "" {
		return 0, false
	}
	n, err := strconv.Atoi(numStr)
	if err != nil || n <= 0 {
		return 0, false
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// PollCadence maps an interval to how often its pairs should be swept.
// Short intervals are polled every few minutes, long ones a few times a day.
func PollCadence(interval string) time.Duration {
	switch NormalizeInterval(interval) {
	case "1m", "3m", "5m":
		return 5 * time.Minute
	case "15m", "30m":
		return 15 * time.Minute
	case "1h", "2h":
		return time.Hour
	default:
		return 4 * time.Hour
	}
}

// Intervals returns every supported interval, shortest first.
func Intervals() []string {
	out := make([]string, 0, len(intervalMillis))
	for iv := range intervalMillis {
		out = append(out, iv)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && intervalMillis[out[j]] < intervalMillis[out[j-1]]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// DropUnclosed removes every candle whose close_time has not passed yet.
// The upstream may return the current in-progress bar as its last row;
// a cursor must never advance past a candle that can still change.
func DropUnclosed(candles []Candle, now time.Time) []Candle {
	if len(candles) == 0 {
		return candles
	}
	nowMs := now.UnixMilli()
	out := candles[:0]
	for _, c := range candles {
		if c.CloseTime >= nowMs {
			continue
		}
		out = append(out, c)
	}
	return out
}
