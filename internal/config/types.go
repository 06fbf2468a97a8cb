package config

import "strings"

// Config is the top-level configuration.
type Config struct {
	App       AppConfig       `toml:"app"`
	Database  DatabaseConfig  `toml:"database"`
	Binance   BinanceConfig   `toml:"binance"`
	Collector CollectorConfig `toml:"collector"`
	Symbols   SymbolsConfig   `toml:"symbols"`
	Indicator IndicatorConfig `toml:"indicator"`
	Monitor   MonitorConfig   `toml:"monitor"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
}

type DatabaseConfig struct {
	CandlePath  string `toml:"candle_path"`
	ControlPath string `toml:"control_path"`
}

type BinanceConfig struct {
	RESTBaseURL     string `toml:"rest_base_url"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	MaxRetries      int    `toml:"max_retries"`
	RetrySeconds    int    `toml:"retry_seconds"`
	RateLimitPerMin int    `toml:"rate_limit_per_min"`
	ProxyEnabled    bool   `toml:"proxy_enabled"`
	ProxyURL        string `toml:"proxy_url"`
	QuoteAsset      string `toml:"quote_asset"`
}

type CollectorConfig struct {
	Workers       int      `toml:"workers"`
	BatchLimit    int      `toml:"batch_limit"`
	BootstrapDays int      `toml:"bootstrap_days"`
	Intervals     []string `toml:"intervals"`
	DrainSeconds  int      `toml:"drain_seconds"`
}

type SymbolsConfig struct {
	// Source picks where sweeps get their symbols: "static", "catalog"
	// (imported exchange info, static as fallback) or "watch" (hot
	// reloaded YAML file).
	Source    string   `toml:"source"`
	Static    []string `toml:"static"`
	WatchFile string   `toml:"watch_file"`
}

type IndicatorConfig struct {
	History       int     `toml:"history"`
	RSIOversold   float64 `toml:"rsi_oversold"`
	RSIOverbought float64 `toml:"rsi_overbought"`
	StochLow      float64 `toml:"stoch_low"`
	StochHigh     float64 `toml:"stoch_high"`
	VolumeSpike   float64 `toml:"volume_spike"`
}

type MonitorConfig struct {
	Enabled  bool   `toml:"enabled"`
	HTTPAddr string `toml:"http_addr"`
}

// keySet tracks config paths the file set explicitly, so zero values a
// user wrote on purpose survive default application.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes one field's default rule.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
