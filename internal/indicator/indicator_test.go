package indicator

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candler/internal/market"
)

func syntheticCandles(n int, price func(i int) float64, volume func(i int) float64) []market.Candle {
	out := make([]market.Candle, n)
	for i := 0; i < n; i++ {
		p := price(i)
		out[i] = market.Candle{
			Symbol:    "BTCUSDT",
			Interval:  "1h",
			OpenTime:  int64(i) * 3_600_000,
			CloseTime: int64(i+1)*3_600_000 - 1,
			Open:      decimal.NewFromFloat(p),
			High:      decimal.NewFromFloat(p * 1.01),
			Low:       decimal.NewFromFloat(p * 0.99),
			Close:     decimal.NewFromFloat(p),
			Volume:    decimal.NewFromFloat(volume(i)),
		}
	}
	return out
}

func flatVolume(int) float64 { return 100 }

func TestComputeSeriesAlignWithInput(t *testing.T) {
	candles := syntheticCandles(120, func(i int) float64 { return 100 + float64(i) }, flatVolume)
	snap, err := Compute(candles, Settings{})
	require.NoError(t, err)

	assert.Equal(t, 120, snap.Len())
	for name, series := range map[string][]float64{
		"sma_fast": snap.SMAFast, "sma_slow": snap.SMASlow,
		"ema_fast": snap.EMAFast, "ema_slow": snap.EMASlow,
		"rsi":  snap.RSI,
		"macd": snap.MACD, "macd_sig": snap.MACDSig, "macd_his": snap.MACDHis,
		"bb_upper": snap.BBUpper, "bb_mid": snap.BBMid, "bb_low": snap.BBLow,
		"stoch_k": snap.StochK, "stoch_d": snap.StochD,
		"volume_sma": snap.VolumeSMA, "volume_ratio": snap.VolumeRatio,
		"support": snap.Support, "resistance": snap.Resistance,
	} {
		assert.Len(t, series, 120, name)
	}
}

func TestComputeMasksInsufficientHistory(t *testing.T) {
	candles := syntheticCandles(120, func(i int) float64 { return 100 + float64(i) }, flatVolume)
	snap, err := Compute(candles, Settings{})
	require.NoError(t, err)

	// sma_50 needs 50 candles: the first 49 positions carry no value.
	for i := 0; i < 49; i++ {
		assert.True(t, math.IsNaN(snap.SMASlow[i]), "sma_slow[%d]", i)
	}
	_, ok := At(snap.SMASlow, 49)
	assert.True(t, ok)

	// MACD(12,26,9) warms up over (26-1)+(9-1) candles.
	for i := 0; i < 33; i++ {
		assert.True(t, math.IsNaN(snap.MACDHis[i]), "macd_his[%d]", i)
	}
	_, ok = At(snap.MACDHis, 33)
	assert.True(t, ok)
}

func TestComputeSMAKnownValues(t *testing.T) {
	// Closes 1..30: SMA(20) at index 19 is mean(1..20) = 10.5, at index
	// 29 it is mean(11..30) = 20.5.
	candles := syntheticCandles(30, func(i int) float64 { return float64(i + 1) }, flatVolume)
	snap, err := Compute(candles, Settings{})
	require.NoError(t, err)

	v, ok := At(snap.SMAFast, 19)
	require.True(t, ok)
	assert.InDelta(t, 10.5, v, 1e-9)

	v, ok = At(snap.SMAFast, 29)
	require.True(t, ok)
	assert.InDelta(t, 20.5, v, 1e-9)
}

func TestComputeVolumeRatio(t *testing.T) {
	spike := func(i int) float64 {
		if i == 59 {
			return 300
		}
		return 100
	}
	candles := syntheticCandles(60, func(i int) float64 { return 100 }, spike)
	snap, err := Compute(candles, Settings{})
	require.NoError(t, err)

	// Average over the last 20 candles is (19*100+300)/20 = 110.
	ratio, ok := Last(snap.VolumeRatio)
	require.True(t, ok)
	assert.InDelta(t, 300.0/110.0, ratio, 1e-9)

	// Before the volume SMA warms up the ratio carries no value.
	_, ok = At(snap.VolumeRatio, 5)
	assert.False(t, ok)
}

func TestComputeRejectsEmptyInput(t *testing.T) {
	_, err := Compute(nil, Settings{})
	require.Error(t, err)
}

func TestSnapshotRowsNullifyMissingValues(t *testing.T) {
	candles := syntheticCandles(60, func(i int) float64 { return 100 + float64(i) }, flatVolume)
	snap, err := Compute(candles, Settings{})
	require.NoError(t, err)

	rows := snap.Rows()
	require.Len(t, rows, 60)

	first := rows[0]
	assert.Equal(t, "BTCUSDT", first.Symbol)
	assert.Equal(t, "1h", first.Interval)
	assert.Nil(t, first.SMA20, "no 20-candle history at index 0")
	assert.Nil(t, first.RSI14)

	last := rows[59]
	require.NotNil(t, last.SMA20)
	require.NotNil(t, last.SMA50)
	require.NotNil(t, last.RSI14)
	require.NotNil(t, last.MACD)
	assert.False(t, math.IsNaN(*last.SMA20))
}

func TestAtAndLast(t *testing.T) {
	series := []float64{math.NaN(), 1.5, math.Inf(1), 2.5}

	_, ok := At(series, 0)
	assert.False(t, ok)
	v, ok := At(series, 1)
	assert.True(t, ok)
	assert.Equal(t, 1.5, v)
	_, ok = At(series, 2)
	assert.False(t, ok)
	_, ok = At(series, -1)
	assert.False(t, ok)
	_, ok = At(series, 99)
	assert.False(t, ok)

	v, ok = Last(series)
	assert.True(t, ok)
	assert.Equal(t, 2.5, v)

	_, ok = Last(nil)
	assert.False(t, ok)
}
