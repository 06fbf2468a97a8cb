package indicator

import (
	"context"
	"fmt"
	"math"

	"candler/internal/logger"
	"candler/internal/market"
	"candler/internal/store/gormstore"
)

// CandleSource reads stored candles for computation.
type CandleSource interface {
	Recent(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error)
}

// RowStore persists computed indicator rows.
type RowStore interface {
	UpsertIndicators(ctx context.Context, rows []gormstore.IndicatorRow) error
}

// EngineConfig wires an Engine.
type EngineConfig struct {
	Candles  CandleSource
	Rows     RowStore
	Settings Settings
	History  int
}

// Engine computes indicators over stored candles and upserts one row per
// candle into the control store.
type Engine struct {
	candles  CandleSource
	rows     RowStore
	settings Settings
	history  int
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Candles == nil || cfg.Rows == nil {
		return nil, fmt.Errorf("engine requires a candle source and a row store")
	}
	history := cfg.History
	if history <= 0 {
		history = 200
	}
	return &Engine{
		candles:  cfg.Candles,
		rows:     cfg.Rows,
		settings: cfg.Settings,
		history:  history,
	}, nil
}

// RunPair computes and stores indicator rows for one pair. Returns the
// snapshot so callers can evaluate signals without re-reading.
func (e *Engine) RunPair(ctx context.Context, symbol, interval string) (Snapshot, error) {
	candles, err := e.candles.Recent(ctx, symbol, interval, e.history)
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading candles for %s %s: %w", symbol, interval, err)
	}
	if len(candles) == 0 {
		return Snapshot{}, fmt.Errorf("no stored candles for %s %s", symbol, interval)
	}
	snap, err := Compute(candles, e.settings)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Symbol = symbol
	snap.Interval = interval
	if err := e.rows.UpsertIndicators(ctx, snap.Rows()); err != nil {
		return Snapshot{}, fmt.Errorf("storing indicators for %s %s: %w", symbol, interval, err)
	}
	return snap, nil
}

// Run computes indicators for every symbol, continuing past per-pair
// failures. Returns the number of pairs that succeeded.
func (e *Engine) Run(ctx context.Context, symbols []string, interval string) (int, error) {
	if len(symbols) == 0 {
		return 0, fmt.Errorf("no symbols to compute")
	}
	succeeded := 0
	var lastErr error
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return succeeded, err
		}
		if _, err := e.RunPair(ctx, symbol, interval); err != nil {
			logger.Warnf("[indicator] %s %s: %v", symbol, interval, err)
			lastErr = err
			continue
		}
		succeeded++
	}
	if succeeded == 0 && lastErr != nil {
		return 0, lastErr
	}
	return succeeded, nil
}

// Rows converts the snapshot to storable rows, one per candle. NaN values
// become NULL columns.
func (s Snapshot) Rows() []gormstore.IndicatorRow {
	rows := make([]gormstore.IndicatorRow, 0, s.Len())
	for i := 0; i < s.Len(); i++ {
		rows = append(rows, gormstore.IndicatorRow{
			Symbol:      s.Symbol,
			Interval:    s.Interval,
			Timestamp:   s.OpenTimes[i],
			SMA20:       nullable(s.SMAFast, i),
			SMA50:       nullable(s.SMASlow, i),
			EMA12:       nullable(s.EMAFast, i),
			EMA26:       nullable(s.EMASlow, i),
			RSI14:       nullable(s.RSI, i),
			MACD:        nullable(s.MACD, i),
			MACDSignal:  nullable(s.MACDSig, i),
			MACDHist:    nullable(s.MACDHis, i),
			BBUpper:     nullable(s.BBUpper, i),
			BBMid:       nullable(s.BBMid, i),
			BBLower:     nullable(s.BBLow, i),
			StochK:      nullable(s.StochK, i),
			StochD:      nullable(s.StochD, i),
			VolumeSMA20: nullable(s.VolumeSMA, i),
			VolumeRatio: nullable(s.VolumeRatio, i),
			Support:     nullable(s.Support, i),
			Resistance:  nullable(s.Resistance, i),
		})
	}
	return rows
}

func nullable(series []float64, i int) *float64 {
	if i < 0 || i >= len(series) {
		return nil
	}
	v := series[i]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
