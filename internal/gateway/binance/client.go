package binance

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"candler/internal/logger"
	"candler/internal/market"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// maxKlineLimit is the largest batch the spot klines endpoint serves.
const maxKlineLimit = 1000

// Client fetches klines from the Binance spot REST API with rate limiting
// and retries for transient failures.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter

	sleep func(ctx context.Context, d time.Duration) bool
}

func New(cfg Config) (*Client, error) {
	final := cfg.withDefaults()
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	perSec := rate.Limit(float64(final.RateLimitPerMin) / 60.0)
	return &Client{
		cfg:     final,
		http:    httpClient,
		limiter: rate.NewLimiter(perSec, 10),
		sleep:   sleepWithContext,
	}, nil
}

// KlineRequest bounds a single klines fetch. Start/End are milliseconds,
// zero means unbounded on that side. Limit is clamped to the API maximum.
type KlineRequest struct {
	Symbol   string
	Interval string
	Start    int64
	End      int64
	Limit    int
}

// Klines fetches one batch of candles, ascending by open_time. Transient
// failures (timeouts, 429/418, 5xx) are retried with a linearly growing
// delay; 4xx and decode failures surface immediately.
func (c *Client) Klines(ctx context.Context, req KlineRequest) ([]market.Candle, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	interval := market.NormalizeInterval(req.Interval)
	if interval == "" {
		return nil, fmt.Errorf("unsupported interval %q", req.Interval)
	}
	limit := req.Limit
	if limit <= 0 || limit > maxKlineLimit {
		limit = maxKlineLimit
	}

	u, err := url.Parse(c.cfg.RESTBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	u.Path = "/api/v3/klines"
	q := u.Query()
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))
	if req.Start > 0 {
		q.Set("startTime", strconv.FormatInt(req.Start, 10))
	}
	if req.End > 0 {
		q.Set("endTime", strconv.FormatInt(req.End, 10))
	}
	u.RawQuery = q.Encode()

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.cfg.RetryDelay * time.Duration(attempt)
			logger.Warnf("[binance] %s %s retry %d/%d in %s: %v",
				symbol, interval, attempt, c.cfg.MaxRetries, delay, lastErr)
			if !c.sleep(ctx, delay) {
				return nil, ctx.Err()
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		candles, err := c.fetchOnce(ctx, u.String(), symbol, interval)
		if err == nil {
			return candles, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !ErrorKind(err).Retryable() {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) fetchOnce(ctx context.Context, rawURL, symbol, interval string) ([]market.Candle, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "msg").String()
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return nil, &APIError{Kind: ClassifyStatus(resp.StatusCode), Status: resp.StatusCode, Msg: msg}
	}
	return parseKlines(body, symbol, interval)
}

// parseKlines decodes the raw kline array-of-arrays payload:
// [openTime, open, high, low, close, volume, closeTime, quoteVolume,
//  trades, takerBuyBase, takerBuyQuote, ignore].
func parseKlines(body []byte, symbol, interval string) ([]market.Candle, error) {
	parsed := gjson.ParseBytes(body)
	if !parsed.IsArray() {
		return nil, &APIError{Kind: KindDecode, Msg: "klines payload is not an array"}
	}
	rows := parsed.Array()
	out := make([]market.Candle, 0, len(rows))
	for _, row := range rows {
		fields := row.Array()
		if len(fields) < 11 {
			return nil, &APIError{Kind: KindDecode, Msg: fmt.Sprintf("kline row has %d fields", len(fields))}
		}
		c := market.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  fields[0].Int(),
			CloseTime: fields[6].Int(),
			Trades:    fields[8].Int(),
		}
		var err error
		if c.Open, err = parseDecimal(fields[1]); err != nil {
			return nil, err
		}
		if c.High, err = parseDecimal(fields[2]); err != nil {
			return nil, err
		}
		if c.Low, err = parseDecimal(fields[3]); err != nil {
			return nil, err
		}
		if c.Close, err = parseDecimal(fields[4]); err != nil {
			return nil, err
		}
		if c.Volume, err = parseDecimal(fields[5]); err != nil {
			return nil, err
		}
		if c.QuoteVolume, err = parseDecimal(fields[7]); err != nil {
			return nil, err
		}
		if c.TakerBuyBaseVolume, err = parseDecimal(fields[9]); err != nil {
			return nil, err
		}
		if c.TakerBuyQuoteVolume, err = parseDecimal(fields[10]); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	market.SortByOpenTime(out)
	return out, nil
}

func parseDecimal(v gjson.Result) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(v.String()))
	if err != nil {
		return decimal.Decimal{}, &APIError{Kind: KindDecode, Msg: fmt.Sprintf("bad decimal %q", v.String()), Err: err}
	}
	return d, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
