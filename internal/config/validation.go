package config

import (
	"fmt"
	"strings"

	"candler/internal/market"
)

func validate(c *Config) error {
	if err := c.Database.validate(); err != nil {
		return err
	}
	if err := c.Collector.validate(); err != nil {
		return err
	}
	if err := c.Symbols.validate(); err != nil {
		return err
	}
	return nil
}

func (d *DatabaseConfig) validate() error {
	if strings.TrimSpace(d.CandlePath) == "" {
		return fmt.Errorf("database.candle_path must not be empty")
	}
	if strings.TrimSpace(d.ControlPath) == "" {
		return fmt.Errorf("database.control_path must not be empty")
	}
	if d.CandlePath == d.ControlPath {
		return fmt.Errorf("database.candle_path and database.control_path must differ")
	}
	return nil
}

func (c *CollectorConfig) validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("collector.workers must be > 0")
	}
	if c.BatchLimit <= 0 || c.BatchLimit > 1000 {
		return fmt.Errorf("collector.batch_limit must be in (0, 1000]")
	}
	for _, iv := range c.Intervals {
		if market.NormalizeInterval(iv) == "" {
			return fmt.Errorf("collector.intervals contains unsupported interval %q", iv)
		}
	}
	return nil
}

func (s *SymbolsConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(s.Source)) {
	case "static":
		if len(s.Static) == 0 {
			return fmt.Errorf("symbols.source=static requires symbols.static entries")
		}
	case "catalog":
	case "watch":
		if strings.TrimSpace(s.WatchFile) == "" {
			return fmt.Errorf("symbols.source=watch requires symbols.watch_file")
		}
	default:
		return fmt.Errorf("symbols.source must be static, catalog or watch")
	}
	return nil
}
