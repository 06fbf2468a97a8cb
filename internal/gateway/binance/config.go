package binance

import (
	"strings"
	"time"
)

type Config struct {
	RESTBaseURL string
	HTTPTimeout time.Duration

	MaxRetries      int
	RetryDelay      time.Duration
	RateLimitPerMin int

	ProxyEnabled bool
	RESTProxyURL string
}

func (c *Config) withDefaults() Config {
	out := *c
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://api.binance.com"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	// Zero means no retries; only negative values are nonsense.
	if out.MaxRetries < 0 {
		out.MaxRetries = 0
	}
	if out.RetryDelay <= 0 {
		out.RetryDelay = 5 * time.Second
	}
	if out.RateLimitPerMin <= 0 {
		out.RateLimitPerMin = 1100
	}
	out.RESTProxyURL = strings.TrimSpace(out.RESTProxyURL)
	return out
}
