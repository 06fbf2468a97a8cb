package indicator

import "fmt"

// Signal is one threshold crossing observed on the newest closed candle.
type Signal struct {
	Symbol    string  `json:"symbol" yaml:"symbol"`
	Interval  string  `json:"interval" yaml:"interval"`
	Indicator string  `json:"indicator" yaml:"indicator"`
	State     string  `json:"state" yaml:"state"`
	Value     float64 `json:"value" yaml:"value"`
	Note      string  `json:"note,omitempty" yaml:"note,omitempty"`
}

// Thresholds configure the signal layer. Zero fields get conventional
// defaults.
type Thresholds struct {
	RSIOversold   float64
	RSIOverbought float64
	StochLow      float64
	StochHigh     float64
	VolumeSpike   float64
}

func (t Thresholds) withDefaults() Thresholds {
	if t.RSIOversold <= 0 {
		t.RSIOversold = 30
	}
	if t.RSIOverbought <= 0 {
		t.RSIOverbought = 70
	}
	if t.StochLow <= 0 {
		t.StochLow = 20
	}
	if t.StochHigh <= 0 {
		t.StochHigh = 80
	}
	if t.VolumeSpike <= 0 {
		t.VolumeSpike = 2
	}
	return t
}

// Evaluate inspects the newest candle of a snapshot and returns every
// signal that fires. Indicators without enough history stay silent.
func Evaluate(snap Snapshot, t Thresholds) []Signal {
	t = t.withDefaults()
	last := snap.Len() - 1
	if last < 0 {
		return nil
	}
	var out []Signal
	add := func(indicator, state string, value float64, note string) {
		out = append(out, Signal{
			Symbol:    snap.Symbol,
			Interval:  snap.Interval,
			Indicator: indicator,
			State:     state,
			Value:     value,
			Note:      note,
		})
	}

	if rsi, ok := At(snap.RSI, last); ok {
		switch {
		case rsi <= t.RSIOversold:
			add("rsi", "oversold", rsi, fmt.Sprintf("RSI %.1f <= %.0f", rsi, t.RSIOversold))
		case rsi >= t.RSIOverbought:
			add("rsi", "overbought", rsi, fmt.Sprintf("RSI %.1f >= %.0f", rsi, t.RSIOverbought))
		}
	}

	// MACD: report a cross only when the histogram flipped sign on the
	// newest candle.
	if hist, ok := At(snap.MACDHis, last); ok {
		if prev, okPrev := At(snap.MACDHis, last-1); okPrev {
			switch {
			case prev <= 0 && hist > 0:
				add("macd", "bullish_cross", hist, "histogram crossed above zero")
			case prev >= 0 && hist < 0:
				add("macd", "bearish_cross", hist, "histogram crossed below zero")
			}
		}
	}

	if last < len(snap.Closes) {
		px := snap.Closes[last]
		if lower, ok := At(snap.BBLow, last); ok && px <= lower {
			add("bollinger", "touch_lower", px, fmt.Sprintf("close %.4f <= lower band %.4f", px, lower))
		}
		if upper, ok := At(snap.BBUpper, last); ok && px >= upper {
			add("bollinger", "touch_upper", px, fmt.Sprintf("close %.4f >= upper band %.4f", px, upper))
		}
	}

	if k, ok := At(snap.StochK, last); ok {
		switch {
		case k <= t.StochLow:
			add("stochastic", "oversold", k, fmt.Sprintf("%%K %.1f <= %.0f", k, t.StochLow))
		case k >= t.StochHigh:
			add("stochastic", "overbought", k, fmt.Sprintf("%%K %.1f >= %.0f", k, t.StochHigh))
		}
	}

	if ratio, ok := At(snap.VolumeRatio, last); ok && ratio >= t.VolumeSpike {
		add("volume", "spike", ratio, fmt.Sprintf("volume %.1fx its %d-candle average", ratio, snap.Settings.VolumePeriod))
	}
	return out
}
