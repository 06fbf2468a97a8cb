package indicator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candler/internal/market"
	"candler/internal/store/gormstore"
)

type fakeCandleSource struct {
	perSymbol map[string][]market.Candle
	err       error
	limits    []int
}

func (f *fakeCandleSource) Recent(_ context.Context, symbol, _ string, limit int) ([]market.Candle, error) {
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	return f.perSymbol[symbol], nil
}

type fakeRowStore struct {
	batches [][]gormstore.IndicatorRow
	err     error
}

func (f *fakeRowStore) UpsertIndicators(_ context.Context, rows []gormstore.IndicatorRow) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, rows)
	return nil
}

func TestEngineRunPairStoresOneRowPerCandle(t *testing.T) {
	candles := syntheticCandles(80, func(i int) float64 { return 100 + float64(i) }, flatVolume)
	source := &fakeCandleSource{perSymbol: map[string][]market.Candle{"BTCUSDT": candles}}
	rows := &fakeRowStore{}

	eng, err := NewEngine(EngineConfig{Candles: source, Rows: rows, History: 150})
	require.NoError(t, err)

	snap, err := eng.RunPair(context.Background(), "BTCUSDT", "1h")
	require.NoError(t, err)
	assert.Equal(t, 80, snap.Len())
	assert.Equal(t, []int{150}, source.limits)
	require.Len(t, rows.batches, 1)
	assert.Len(t, rows.batches[0], 80)
}

func TestEngineRunPairNoCandles(t *testing.T) {
	eng, err := NewEngine(EngineConfig{
		Candles: &fakeCandleSource{perSymbol: map[string][]market.Candle{}},
		Rows:    &fakeRowStore{},
	})
	require.NoError(t, err)

	_, err = eng.RunPair(context.Background(), "BTCUSDT", "1h")
	require.Error(t, err)
}

func TestEngineRunContinuesPastPairFailures(t *testing.T) {
	candles := syntheticCandles(80, func(i int) float64 { return 100 + float64(i) }, flatVolume)
	source := &fakeCandleSource{perSymbol: map[string][]market.Candle{
		"BTCUSDT": candles,
		"SOLUSDT": candles,
	}}
	rows := &fakeRowStore{}
	eng, err := NewEngine(EngineConfig{Candles: source, Rows: rows})
	require.NoError(t, err)

	// ETHUSDT has no stored candles and fails; the other two still run.
	succeeded, err := eng.Run(context.Background(), []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, "1h")
	require.NoError(t, err)
	assert.Equal(t, 2, succeeded)
	assert.Len(t, rows.batches, 2)
}

func TestEngineRunAllPairsFailing(t *testing.T) {
	eng, err := NewEngine(EngineConfig{
		Candles: &fakeCandleSource{err: assert.AnError},
		Rows:    &fakeRowStore{},
	})
	require.NoError(t, err)

	succeeded, err := eng.Run(context.Background(), []string{"BTCUSDT", "ETHUSDT"}, "1h")
	require.Error(t, err)
	assert.Zero(t, succeeded)
}
