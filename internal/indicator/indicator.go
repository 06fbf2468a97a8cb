package indicator

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"candler/internal/market"
)

// Settings holds the periods for one computation pass. Zero fields get
// the conventional defaults.
type Settings struct {
	SMAFast   int
	SMASlow   int
	EMAFast   int
	EMASlow   int
	RSIPeriod int

	MACDFast   int
	MACDSlow   int
	MACDSignal int

	BBPeriod int
	BBStdDev float64

	StochK      int
	StochSmooth int
	StochD      int

	VolumePeriod int
	LevelPeriod  int
}

func (s Settings) withDefaults() Settings {
	def := func(v *int, d int) {
		if *v <= 0 {
			*v = d
		}
	}
	def(&s.SMAFast, 20)
	def(&s.SMASlow, 50)
	def(&s.EMAFast, 12)
	def(&s.EMASlow, 26)
	def(&s.RSIPeriod, 14)
	def(&s.MACDFast, 12)
	def(&s.MACDSlow, 26)
	def(&s.MACDSignal, 9)
	def(&s.BBPeriod, 20)
	def(&s.StochK, 14)
	def(&s.StochSmooth, 3)
	def(&s.StochD, 3)
	def(&s.VolumePeriod, 20)
	def(&s.LevelPeriod, 20)
	if s.BBStdDev <= 0 {
		s.BBStdDev = 2
	}
	return s
}

// Snapshot holds every computed series for one pair. All series have the
// same length as the input candles; positions without enough history are
// NaN rather than being dropped, so index i always lines up with candle i.
type Snapshot struct {
	Symbol    string
	Interval  string
	OpenTimes []int64
	Closes    []float64

	SMAFast, SMASlow       []float64
	EMAFast, EMASlow       []float64
	RSI                    []float64
	MACD, MACDSig, MACDHis []float64
	BBUpper, BBMid, BBLow  []float64
	StochK, StochD         []float64
	VolumeSMA, VolumeRatio []float64
	Support, Resistance    []float64

	Settings Settings
}

// Len returns the number of candles the snapshot covers.
func (s Snapshot) Len() int { return len(s.OpenTimes) }

// Compute derives the full indicator set from closed candles. The input
// must be ascending by open_time.
func Compute(candles []market.Candle, cfg Settings) (Snapshot, error) {
	cfg = cfg.withDefaults()
	if len(candles) == 0 {
		return Snapshot{}, fmt.Errorf("no candles")
	}
	n := len(candles)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	openTimes := make([]int64, n)
	for i, c := range candles {
		closes[i] = c.Close.InexactFloat64()
		highs[i] = c.High.InexactFloat64()
		lows[i] = c.Low.InexactFloat64()
		volumes[i] = c.Volume.InexactFloat64()
		openTimes[i] = c.OpenTime
	}

	snap := Snapshot{
		Symbol:    candles[0].Symbol,
		Interval:  candles[0].Interval,
		OpenTimes: openTimes,
		Closes:    closes,
		Settings:  cfg,
	}

	snap.SMAFast = mask(talib.Sma(closes, cfg.SMAFast), cfg.SMAFast-1)
	snap.SMASlow = mask(talib.Sma(closes, cfg.SMASlow), cfg.SMASlow-1)
	snap.EMAFast = mask(talib.Ema(closes, cfg.EMAFast), cfg.EMAFast-1)
	snap.EMASlow = mask(talib.Ema(closes, cfg.EMASlow), cfg.EMASlow-1)
	snap.RSI = mask(talib.Rsi(closes, cfg.RSIPeriod), cfg.RSIPeriod)

	macd, sig, hist := talib.Macd(closes, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
	macdLookback := cfg.MACDSlow - 1 + cfg.MACDSignal - 1
	snap.MACD = mask(macd, macdLookback)
	snap.MACDSig = mask(sig, macdLookback)
	snap.MACDHis = mask(hist, macdLookback)

	upper, mid, lower := talib.BBands(closes, cfg.BBPeriod, cfg.BBStdDev, cfg.BBStdDev, talib.SMA)
	snap.BBUpper = mask(upper, cfg.BBPeriod-1)
	snap.BBMid = mask(mid, cfg.BBPeriod-1)
	snap.BBLow = mask(lower, cfg.BBPeriod-1)

	k, d := talib.Stoch(highs, lows, closes, cfg.StochK, cfg.StochSmooth, talib.SMA, cfg.StochD, talib.SMA)
	stochLookback := cfg.StochK - 1 + cfg.StochSmooth - 1 + cfg.StochD - 1
	snap.StochK = mask(k, stochLookback)
	snap.StochD = mask(d, stochLookback)

	snap.VolumeSMA = mask(talib.Sma(volumes, cfg.VolumePeriod), cfg.VolumePeriod-1)
	snap.VolumeRatio = make([]float64, n)
	for i := range volumes {
		avg := snap.VolumeSMA[i]
		if math.IsNaN(avg) || avg == 0 {
			snap.VolumeRatio[i] = math.NaN()
			continue
		}
		snap.VolumeRatio[i] = volumes[i] / avg
	}

	snap.Support = mask(talib.Min(lows, cfg.LevelPeriod), cfg.LevelPeriod-1)
	snap.Resistance = mask(talib.Max(highs, cfg.LevelPeriod), cfg.LevelPeriod-1)
	return snap, nil
}

// mask marks the leading lookback positions as insufficient history.
// TALib zero-seeds them, which is indistinguishable from a real value.
func mask(series []float64, lookback int) []float64 {
	if lookback < 0 {
		lookback = 0
	}
	out := make([]float64, len(series))
	copy(out, series)
	for i := 0; i < lookback && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}

// At returns the value at index i, (0, false) when history was too short.
func At(series []float64, i int) (float64, bool) {
	if i < 0 || i >= len(series) {
		return 0, false
	}
	v := series[i]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Last returns the newest valid value of a series.
func Last(series []float64) (float64, bool) {
	return At(series, len(series)-1)
}
