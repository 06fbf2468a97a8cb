package symbols

import (
	"context"
	"fmt"
	"sync"

	"candler/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// WatchProvider serves a symbol list from a YAML file and hot-reloads it
// when the file changes, so continuous mode picks up new pairs without a
// restart. A broken edit keeps the previous list.
type WatchProvider struct {
	path string
	v    *viper.Viper

	mu      sync.RWMutex
	current []string
}

// fileConfig maps the watch file:
//
//	symbols:
//	  - BTCUSDT
//	  - ETH
type fileConfig struct {
	Symbols []string `mapstructure:"symbols"`
}

func NewWatchProvider(path string) (*WatchProvider, error) {
	if path == "" {
		return nil, fmt.Errorf("watch file path is required")
	}
	v := viper.New()
	v.SetConfigFile(path)
	p := &WatchProvider{path: path, v: v}
	if err := p.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := p.reload(); err != nil {
			logger.Errorf("symbol watch reload failed (%s): %v", evt.Name, err)
			return
		}
		logger.Infof("symbol watch file reloaded: %d symbols", len(p.snapshot()))
	})
	v.WatchConfig()
	return p, nil
}

func (p *WatchProvider) reload() error {
	if err := p.v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading %s: %w", p.path, err)
	}
	var cfg fileConfig
	if err := p.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", p.path, err)
	}
	normalized, err := Normalize(cfg.Symbols)
	if err != nil {
		return fmt.Errorf("%s: %w", p.path, err)
	}
	p.mu.Lock()
	p.current = normalized
	p.mu.Unlock()
	return nil
}

func (p *WatchProvider) snapshot() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.current))
	copy(out, p.current)
	return out
}

func (p *WatchProvider) Name() string { return "watch:" + p.path }

func (p *WatchProvider) List(_ context.Context) ([]string, error) {
	syms := p.snapshot()
	if len(syms) == 0 {
		return nil, fmt.Errorf("watch file %s holds no symbols", p.path)
	}
	return syms, nil
}
