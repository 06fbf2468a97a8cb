package config

import "strings"

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppLogPath  = "data/logs/candler.log"

	defaultCandlePath  = "data/db/candles.db"
	defaultControlPath = "data/db/control.db"

	defaultBinanceREST      = "https://api.binance.com"
	defaultBinanceTimeout   = 15
	defaultBinanceRetries   = 3
	defaultBinanceRetrySec  = 5
	defaultBinanceRateLimit = 1100
	defaultQuoteAsset       = "USDT"

	defaultWorkers       = 5
	defaultBatchLimit    = 1000
	defaultBootstrapDays = 30
	defaultDrainSeconds  = 60

	defaultSymbolSource     = "static"
	defaultIndicatorHistory = 200
	defaultMonitorAddr      = ":9981"
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Database.applyDefaults(keys)
	c.Binance.applyDefaults(keys)
	c.Collector.applyDefaults(keys)
	c.Symbols.applyDefaults(keys)
	c.Indicator.applyDefaults(keys)
	c.Monitor.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (d *DatabaseConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("database.candle_path", &d.CandlePath, defaultCandlePath),
		stringFieldDefault("database.control_path", &d.ControlPath, defaultControlPath),
	)
}

func (b *BinanceConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("binance.rest_base_url", &b.RESTBaseURL, defaultBinanceREST),
		intFieldDefault("binance.timeout_seconds", &b.TimeoutSeconds, defaultBinanceTimeout),
		intFieldDefault("binance.max_retries", &b.MaxRetries, defaultBinanceRetries),
		intFieldDefault("binance.retry_seconds", &b.RetrySeconds, defaultBinanceRetrySec),
		intFieldDefault("binance.rate_limit_per_min", &b.RateLimitPerMin, defaultBinanceRateLimit),
		stringFieldDefault("binance.quote_asset", &b.QuoteAsset, defaultQuoteAsset),
	)
}

func (c *CollectorConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("collector.workers", &c.Workers, defaultWorkers),
		intFieldDefault("collector.batch_limit", &c.BatchLimit, defaultBatchLimit),
		intFieldDefault("collector.bootstrap_days", &c.BootstrapDays, defaultBootstrapDays),
		intFieldDefault("collector.drain_seconds", &c.DrainSeconds, defaultDrainSeconds),
		fieldDefault{
			key:   "collector.intervals",
			need:  func() bool { return len(c.Intervals) == 0 },
			apply: func() { c.Intervals = []string{"1h"} },
		},
	)
}

func (s *SymbolsConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("symbols.source", &s.Source, defaultSymbolSource),
	)
}

func (i *IndicatorConfig) applyDefaults(keys keySet) {
	if i == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("indicator.history", &i.History, defaultIndicatorHistory),
	)
}

func (m *MonitorConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("monitor.http_addr", &m.HTTPAddr, defaultMonitorAddr),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && *target <= 0
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
