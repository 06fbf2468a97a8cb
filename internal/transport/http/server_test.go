package monitorhttp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"candler/internal/market"
	"candler/internal/store/gormstore"
)

type fakeControl struct {
	cursors []gormstore.Cursor
	logs    []gormstore.RunLog
	err     error
}

func (f *fakeControl) ListCursors(context.Context) ([]gormstore.Cursor, error) {
	return f.cursors, f.err
}

func (f *fakeControl) RecentRunLogs(_ context.Context, limit int) ([]gormstore.RunLog, error) {
	if limit < len(f.logs) {
		return f.logs[:limit], f.err
	}
	return f.logs, f.err
}

type fakeCandles struct {
	candles []market.Candle
	err     error
}

func (f *fakeCandles) Recent(context.Context, string, string, int) ([]market.Candle, error) {
	return f.candles, f.err
}

func newTestServer(t *testing.T, control *fakeControl, candles *fakeCandles) *httptest.Server {
	t.Helper()
	s, err := NewServer(ServerConfig{Control: control, Candles: candles})
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &fakeControl{}, &fakeCandles{})
	status, body := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", gjson.GetBytes(body, "status").String())
}

func TestStatusReportsLag(t *testing.T) {
	last := int64(1700000000000)
	control := &fakeControl{cursors: []gormstore.Cursor{
		{Symbol: "BTCUSDT", Interval: "1h", LastCollected: &last, Status: gormstore.CursorStatusActive},
		{Symbol: "ETHUSDT", Interval: "1h", Status: gormstore.CursorStatusError, ErrorCount: 3, LastError: "timeout"},
	}}
	srv := newTestServer(t, control, &fakeCandles{})

	status, body := get(t, srv.URL+"/api/status")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(2), gjson.GetBytes(body, "count").Int())

	pairs := gjson.GetBytes(body, "pairs").Array()
	require.Len(t, pairs, 2)
	assert.Equal(t, "BTCUSDT", pairs[0].Get("symbol").String())
	assert.True(t, pairs[0].Get("lag_ms").Int() > 0)
	assert.Equal(t, "error", pairs[1].Get("status").String())
	assert.Equal(t, int64(3), pairs[1].Get("error_count").Int())
	assert.Equal(t, gjson.Null, pairs[1].Get("lag_ms").Type, "no position means no lag")
}

func TestEventsLimit(t *testing.T) {
	control := &fakeControl{logs: []gormstore.RunLog{
		{RunID: "a"}, {RunID: "b"}, {RunID: "c"},
	}}
	srv := newTestServer(t, control, &fakeCandles{})

	status, body := get(t, srv.URL+"/api/events?limit=2")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(2), gjson.GetBytes(body, "count").Int())
}

func TestCandlesRequiresPair(t *testing.T) {
	srv := newTestServer(t, &fakeControl{}, &fakeCandles{})

	status, _ := get(t, srv.URL+"/api/candles")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = get(t, srv.URL+"/api/candles?symbol=BTCUSDT&interval=7x")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCandlesReturnsStoredRows(t *testing.T) {
	price := decimal.RequireFromString("42000.5")
	candles := &fakeCandles{candles: []market.Candle{{
		Symbol: "BTCUSDT", Interval: "1h",
		OpenTime: 1700000000000, CloseTime: 1700003599999,
		Open: price, High: price, Low: price, Close: price,
		Volume: decimal.NewFromInt(10),
	}}}
	srv := newTestServer(t, &fakeControl{}, candles)

	status, body := get(t, srv.URL+"/api/candles?symbol=btcusdt&interval=1h")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(1), gjson.GetBytes(body, "count").Int())
}

func TestSignalsNoCandles(t *testing.T) {
	srv := newTestServer(t, &fakeControl{}, &fakeCandles{})

	status, _ := get(t, srv.URL+"/api/signals?symbol=BTCUSDT&interval=1h")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestControlErrorSurfacesAs500(t *testing.T) {
	srv := newTestServer(t, &fakeControl{err: assert.AnError}, &fakeCandles{})

	status, _ := get(t, srv.URL+"/api/status")
	assert.Equal(t, http.StatusInternalServerError, status)
}
