package report

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"candler/internal/indicator"
	"candler/internal/market"
)

const (
	chartWidthPx   = 1280
	klineHeightPx  = 520
	volumeHeightPx = 220
)

// WriteHTML renders a candlestick page with EMA overlays and a volume bar
// chart for one pair and writes it to path.
func WriteHTML(path, symbol, interval string, candles []market.Candle, snap indicator.Snapshot) error {
	if len(candles) == 0 {
		return fmt.Errorf("no candles to render for %s %s", symbol, interval)
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)

	xAxis := buildXAxis(candles)

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:  types.ThemeWesteros,
			Width:  fmt.Sprintf("%dpx", chartWidthPx),
			Height: fmt.Sprintf("%dpx", klineHeightPx),
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s %s", strings.ToUpper(symbol), interval),
			Subtitle: subtitle(snap),
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", buildKlineSeries(candles))

	emaLine := charts.NewLine()
	emaLine.SetXAxis(xAxis)
	emaLine.AddSeries(fmt.Sprintf("EMA%d", snap.Settings.EMAFast), toLineData(snap.EMAFast),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	emaLine.AddSeries(fmt.Sprintf("EMA%d", snap.Settings.EMASlow), toLineData(snap.EMASlow),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	kline.Overlap(emaLine)

	volume := charts.NewBar()
	volume.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:  types.ThemeWesteros,
			Width:  fmt.Sprintf("%dpx", chartWidthPx),
			Height: fmt.Sprintf("%dpx", volumeHeightPx),
		}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Volume %s", interval)}),
	)
	volume.SetXAxis(xAxis)
	volume.AddSeries("Volume", buildVolumeSeries(candles))

	page.AddCharts(kline, volume)

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return page.Render(f)
}

func subtitle(snap indicator.Snapshot) string {
	parts := make([]string, 0, 2)
	if rsi, ok := indicator.Last(snap.RSI); ok {
		parts = append(parts, fmt.Sprintf("RSI %.1f", rsi))
	}
	if hist, ok := indicator.Last(snap.MACDHis); ok {
		parts = append(parts, fmt.Sprintf("MACD hist %.4f", hist))
	}
	return strings.Join(parts, " | ")
}

func buildXAxis(candles []market.Candle) []string {
	x := make([]string, len(candles))
	for i, c := range candles {
		x[i] = time.UnixMilli(c.OpenTime).UTC().Format("01-02 15:04")
	}
	return x
}

func buildKlineSeries(candles []market.Candle) []opts.KlineData {
	data := make([]opts.KlineData, 0, len(candles))
	for _, c := range candles {
		data = append(data, opts.KlineData{Value: [4]float64{
			c.Open.InexactFloat64(),
			c.Close.InexactFloat64(),
			c.Low.InexactFloat64(),
			c.High.InexactFloat64(),
		}})
	}
	return data
}

func buildVolumeSeries(candles []market.Candle) []opts.BarData {
	data := make([]opts.BarData, 0, len(candles))
	for _, c := range candles {
		data = append(data, opts.BarData{Value: c.Volume.InexactFloat64()})
	}
	return data
}

func toLineData(series []float64) []opts.LineData {
	data := make([]opts.LineData, 0, len(series))
	for _, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			data = append(data, opts.LineData{Value: nil})
			continue
		}
		data = append(data, opts.LineData{Value: v})
	}
	return data
}
