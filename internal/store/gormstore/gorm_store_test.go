package gormstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "control.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCursorLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, found, err := s.Cursor(ctx, "BTCUSDT", "1h")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.AdvanceCursor(ctx, "btcusdt", "1h", 1700000000000))

	cur, found, err := s.Cursor(ctx, "BTCUSDT", "1h")
	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, cur.LastCollected)
	assert.Equal(t, int64(1700000000000), *cur.LastCollected)
	assert.Equal(t, CursorStatusActive, cur.Status)
	assert.Zero(t, cur.ErrorCount)

	require.NoError(t, s.AdvanceCursor(ctx, "BTCUSDT", "1h", 1700003600000))
	cur, _, err = s.Cursor(ctx, "BTCUSDT", "1h")
	require.NoError(t, err)
	assert.Equal(t, int64(1700003600000), *cur.LastCollected)
}

func TestMarkCursorErrorPreservesPosition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AdvanceCursor(ctx, "BTCUSDT", "1h", 1700000000000))
	require.NoError(t, s.MarkCursorError(ctx, "BTCUSDT", "1h", "timeout"))

	cur, found, err := s.Cursor(ctx, "BTCUSDT", "1h")
	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, cur.LastCollected)
	assert.Equal(t, int64(1700000000000), *cur.LastCollected)
	assert.Equal(t, CursorStatusError, cur.Status)
	assert.Equal(t, 1, cur.ErrorCount)
	assert.Equal(t, "timeout", cur.LastError)
}

func TestErrorStreakGrowsAndResets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.MarkCursorError(ctx, "BTCUSDT", "1h", "one"))
	require.NoError(t, s.MarkCursorError(ctx, "BTCUSDT", "1h", "two"))
	require.NoError(t, s.MarkCursorError(ctx, "BTCUSDT", "1h", "three"))

	cur, _, err := s.Cursor(ctx, "BTCUSDT", "1h")
	require.NoError(t, err)
	assert.Equal(t, 3, cur.ErrorCount)
	assert.Equal(t, "three", cur.LastError)

	require.NoError(t, s.ResetCursorStatus(ctx, "BTCUSDT", "1h"))
	cur, _, err = s.Cursor(ctx, "BTCUSDT", "1h")
	require.NoError(t, err)
	assert.Equal(t, CursorStatusActive, cur.Status)
	assert.Zero(t, cur.ErrorCount)
	assert.Empty(t, cur.LastError)
}

func TestResetCursorStatusKeepsPosition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AdvanceCursor(ctx, "BTCUSDT", "1h", 1700000000000))
	require.NoError(t, s.ResetCursorStatus(ctx, "BTCUSDT", "1h"))

	cur, _, err := s.Cursor(ctx, "BTCUSDT", "1h")
	require.NoError(t, err)
	require.NotNil(t, cur.LastCollected)
	assert.Equal(t, int64(1700000000000), *cur.LastCollected)
}

func TestCursorsAreScopedPerPair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AdvanceCursor(ctx, "BTCUSDT", "1h", 100))
	require.NoError(t, s.AdvanceCursor(ctx, "BTCUSDT", "4h", 200))
	require.NoError(t, s.AdvanceCursor(ctx, "ETHUSDT", "1h", 300))

	cursors, err := s.ListCursors(ctx)
	require.NoError(t, err)
	require.Len(t, cursors, 3)
	assert.Equal(t, "BTCUSDT", cursors[0].Symbol)
	assert.Equal(t, "1h", cursors[0].Interval)
	assert.Equal(t, "4h", cursors[1].Interval)
	assert.Equal(t, "ETHUSDT", cursors[2].Symbol)
}

func TestRunLogsAppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendRunLog(ctx, RunLog{
			RunID:    "run-" + string(rune('a'+i)),
			Symbol:   "BTCUSDT",
			Interval: "1h",
			RunType:  RunTypeSingle,
			Records:  i,
			Status:   "success",
		}))
	}

	logs, err := s.RecentRunLogs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "run-c", logs[0].RunID)
	assert.Equal(t, 2, logs[0].Records)
	assert.Equal(t, RunTypeSingle, logs[0].RunType)
}

func TestAppendRunLogRequiresPair(t *testing.T) {
	s := newTestStore(t)
	require.Error(t, s.AppendRunLog(context.Background(), RunLog{Status: "success"}))
}

func TestTokenCatalog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tokens := []Token{
		{Symbol: "btcusdt", BaseAsset: "btc", QuoteAsset: "usdt", Status: "TRADING", SpotAllowed: true},
		{Symbol: "ETHUSDT", BaseAsset: "ETH", QuoteAsset: "USDT", Status: "TRADING", SpotAllowed: true},
		{Symbol: "OLDUSDT", BaseAsset: "OLD", QuoteAsset: "USDT", Status: "BREAK", SpotAllowed: true},
		{Symbol: "BTCEUR", BaseAsset: "BTC", QuoteAsset: "EUR", Status: "TRADING", SpotAllowed: true},
	}
	require.NoError(t, s.UpsertTokens(ctx, tokens))

	active, err := s.ActiveSymbols(ctx, "USDT")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, active)

	// Re-import with a status change updates in place.
	tokens[1].Status = "BREAK"
	require.NoError(t, s.UpsertTokens(ctx, tokens))
	active, err = s.ActiveSymbols(ctx, "usdt")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT"}, active)
}

func TestUpsertIndicators(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v1, v2 := 42.5, 55.1
	rows := []IndicatorRow{
		{Symbol: "BTCUSDT", Interval: "1h", Timestamp: 1700000000000, RSI14: &v1},
		{Symbol: "BTCUSDT", Interval: "1h", Timestamp: 1700003600000, RSI14: &v2},
	}
	require.NoError(t, s.UpsertIndicators(ctx, rows))

	latest, err := s.LatestIndicators(ctx, "1h")
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, int64(1700003600000), latest[0].Timestamp)
	require.NotNil(t, latest[0].RSI14)
	assert.Equal(t, 55.1, *latest[0].RSI14)
	assert.Nil(t, latest[0].SMA20)

	// Recomputing the same candle replaces the stored values.
	v3 := 61.0
	require.NoError(t, s.UpsertIndicators(ctx, []IndicatorRow{
		{Symbol: "BTCUSDT", Interval: "1h", Timestamp: 1700003600000, RSI14: &v3},
	}))
	latest, err = s.LatestIndicators(ctx, "1h")
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, 61.0, *latest[0].RSI14)
}
