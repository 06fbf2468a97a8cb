package market

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Candle is one closed OHLCV bar. Times are milliseconds since epoch.
// Prices and volumes are decimals so exchange strings round-trip exactly.
type Candle struct {
	Symbol    string `json:"symbol,omitempty"`
	Interval  string `json:"interval,omitempty"`
	OpenTime  int64  `json:"open_time"`
	CloseTime int64  `json:"close_time"`

	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`

	QuoteVolume         decimal.Decimal `json:"quote_volume"`
	TakerBuyBaseVolume  decimal.Decimal `json:"taker_buy_base_volume"`
	TakerBuyQuoteVolume decimal.Decimal `json:"taker_buy_quote_volume"`
	Trades              int64           `json:"trades"`
}

// SortByOpenTime orders candles ascending in place.
func SortByOpenTime(candles []Candle) {
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].OpenTime < candles[j].OpenTime
	})
}

// MaxOpenTime returns the largest open_time in the slice, or 0 when empty.
func MaxOpenTime(candles []Candle) int64 {
	var max int64
	for _, c := range candles {
		if c.OpenTime > max {
			max = c.OpenTime
		}
	}
	return max
}
