package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"candler/internal/collector"
	"candler/internal/config"
	"candler/internal/gateway/binance"
	"candler/internal/indicator"
	"candler/internal/logger"
	"candler/internal/market"
	"candler/internal/report"
	"candler/internal/store/gormstore"
	"candler/internal/store/klinedb"
	"candler/internal/symbols"
	monitorhttp "candler/internal/transport/http"
)

// The CLI accepts a closed set of operations, parsed once at startup.
type operation interface{ isOperation() }

type sweepOp struct {
	interval string
	limit    int
}

type continuousOp struct {
	intervals []string
}

type fillOp struct {
	symbol   string
	interval string
	days     int
}

type importOp struct{}

type indicatorsOp struct {
	interval string
}

type signalsOp struct {
	symbol   string
	interval string
}

type reportOp struct {
	symbol   string
	interval string
	out      string
}

func (sweepOp) isOperation()      {}
func (continuousOp) isOperation() {}
func (fillOp) isOperation()       {}
func (importOp) isOperation()     {}
func (indicatorsOp) isOperation() {}
func (signalsOp) isOperation()    {}
func (reportOp) isOperation()     {}

func main() {
	cfgPath := os.Getenv("CANDLER_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config failed: %v", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("initializing log file failed: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)

	op, err := parseArgs(os.Args[1:], cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\n", err)
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, op); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `usage: candler <command> [args]

commands:
  single [interval] [limit]        one collection sweep over all symbols
  continuous [iv1,iv2,...]         scheduled collection loops + monitor
  fill SYMBOL INTERVAL [days]      windowed historical backfill for one pair
  import-symbols                   refresh the token catalog from exchange info
  indicators [interval]            compute and store indicator rows
  signals SYMBOL [interval]        evaluate threshold signals for one pair
  report SYMBOL INTERVAL [out]     render a candlestick HTML report
`)
}

func parseArgs(args []string, cfg *config.Config) (operation, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("a command is required")
	}
	defaultInterval := "1h"
	if len(cfg.Collector.Intervals) > 0 {
		defaultInterval = cfg.Collector.Intervals[0]
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "single":
		op := sweepOp{interval: defaultInterval, limit: cfg.Collector.BatchLimit}
		if len(rest) > 0 {
			op.interval = rest[0]
		}
		if len(rest) > 1 {
			n, err := strconv.Atoi(rest[1])
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("limit must be a positive integer, got %q", rest[1])
			}
			op.limit = n
		}
		if market.NormalizeInterval(op.interval) == "" {
			return nil, fmt.Errorf("unsupported interval %q", op.interval)
		}
		return op, nil
	case "continuous":
		intervals := cfg.Collector.Intervals
		if len(rest) > 0 {
			intervals = strings.Split(rest[0], ",")
		}
		for _, iv := range intervals {
			if market.NormalizeInterval(iv) == "" {
				return nil, fmt.Errorf("unsupported interval %q", iv)
			}
		}
		return continuousOp{intervals: intervals}, nil
	case "fill":
		if len(rest) < 2 {
			return nil, fmt.Errorf("fill requires SYMBOL and INTERVAL")
		}
		op := fillOp{symbol: rest[0], interval: rest[1], days: cfg.Collector.BootstrapDays}
		if market.NormalizeInterval(op.interval) == "" {
			return nil, fmt.Errorf("unsupported interval %q", op.interval)
		}
		if len(rest) > 2 {
			n, err := strconv.Atoi(rest[2])
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("days must be a positive integer, got %q", rest[2])
			}
			op.days = n
		}
		return op, nil
	case "import-symbols":
		return importOp{}, nil
	case "indicators":
		op := indicatorsOp{interval: defaultInterval}
		if len(rest) > 0 {
			op.interval = rest[0]
		}
		if market.NormalizeInterval(op.interval) == "" {
			return nil, fmt.Errorf("unsupported interval %q", op.interval)
		}
		return op, nil
	case "signals":
		if len(rest) < 1 {
			return nil, fmt.Errorf("signals requires SYMBOL")
		}
		op := signalsOp{symbol: rest[0], interval: defaultInterval}
		if len(rest) > 1 {
			op.interval = rest[1]
		}
		if market.NormalizeInterval(op.interval) == "" {
			return nil, fmt.Errorf("unsupported interval %q", op.interval)
		}
		return op, nil
	case "report":
		if len(rest) < 2 {
			return nil, fmt.Errorf("report requires SYMBOL and INTERVAL")
		}
		op := reportOp{symbol: rest[0], interval: rest[1], out: ""}
		if market.NormalizeInterval(op.interval) == "" {
			return nil, fmt.Errorf("unsupported interval %q", op.interval)
		}
		if len(rest) > 2 {
			op.out = rest[2]
		} else {
			op.out = fmt.Sprintf("%s_%s.html", strings.ToLower(op.symbol), op.interval)
		}
		return op, nil
	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}

// services is the hand-wired object graph shared by every operation.
type services struct {
	candles *klinedb.Store
	control *gormstore.GormStore
	client  *binance.Client
	runner  *collector.Runner
	symbols symbols.Provider
	cfg     *config.Config
}

func buildServices(cfg *config.Config) (*services, error) {
	candles, err := klinedb.New(cfg.Database.CandlePath)
	if err != nil {
		return nil, fmt.Errorf("opening candle store: %w", err)
	}
	control, err := gormstore.New(cfg.Database.ControlPath)
	if err != nil {
		_ = candles.Close()
		return nil, fmt.Errorf("opening control store: %w", err)
	}
	client, err := binance.New(binance.Config{
		RESTBaseURL:     cfg.Binance.RESTBaseURL,
		HTTPTimeout:     time.Duration(cfg.Binance.TimeoutSeconds) * time.Second,
		MaxRetries:      cfg.Binance.MaxRetries,
		RetryDelay:      time.Duration(cfg.Binance.RetrySeconds) * time.Second,
		RateLimitPerMin: cfg.Binance.RateLimitPerMin,
		ProxyEnabled:    cfg.Binance.ProxyEnabled,
		RESTProxyURL:    cfg.Binance.ProxyURL,
	})
	if err != nil {
		_ = candles.Close()
		_ = control.Close()
		return nil, fmt.Errorf("building binance client: %w", err)
	}
	runner, err := collector.NewRunner(collector.RunnerConfig{
		Fetcher:       binanceFetcher{client: client},
		Sink:          candles,
		Cursors:       control,
		RunLogs:       control,
		BatchLimit:    cfg.Collector.BatchLimit,
		BootstrapDays: cfg.Collector.BootstrapDays,
	})
	if err != nil {
		_ = candles.Close()
		_ = control.Close()
		return nil, err
	}
	provider, err := buildProvider(cfg, control)
	if err != nil {
		_ = candles.Close()
		_ = control.Close()
		return nil, err
	}
	return &services{
		candles: candles,
		control: control,
		client:  client,
		runner:  runner,
		symbols: provider,
		cfg:     cfg,
	}, nil
}

func (s *services) Close() {
	_ = s.candles.Close()
	_ = s.control.Close()
}

func buildProvider(cfg *config.Config, control *gormstore.GormStore) (symbols.Provider, error) {
	static := symbols.NewStaticProvider(cfg.Symbols.Static)
	switch strings.ToLower(cfg.Symbols.Source) {
	case "catalog":
		return symbols.NewCatalogProvider(control, cfg.Binance.QuoteAsset, static), nil
	case "watch":
		return symbols.NewWatchProvider(cfg.Symbols.WatchFile)
	default:
		return static, nil
	}
}

// binanceFetcher adapts the REST client to the collector's Fetcher.
type binanceFetcher struct {
	client *binance.Client
}

func (f binanceFetcher) Fetch(ctx context.Context, req collector.FetchRequest) ([]market.Candle, error) {
	return f.client.Klines(ctx, binance.KlineRequest{
		Symbol:   req.Symbol,
		Interval: req.Interval,
		Start:    req.Start,
		End:      req.End,
		Limit:    req.Limit,
	})
}

func run(ctx context.Context, cfg *config.Config, op operation) error {
	svc, err := buildServices(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()
	drain := time.Duration(cfg.Collector.DrainSeconds) * time.Second

	switch op := op.(type) {
	case sweepOp:
		queue := collector.NewQueue()
		pool := collector.NewPool(queue, svc.runner, cfg.Collector.Workers)
		sched, err := collector.NewScheduler(collector.SchedulerConfig{
			Queue:        queue,
			Pool:         pool,
			Symbols:      svc.symbols,
			DrainTimeout: drain,
		})
		if err != nil {
			return err
		}
		pool.Start(ctx)
		rep, err := sched.Sweep(ctx, op.interval, op.limit)
		pool.Shutdown(drain)
		if err != nil {
			return err
		}
		if rep.Errors > 0 {
			return fmt.Errorf("sweep finished with %d errors (collected %d candles)", rep.Errors, rep.Collected)
		}
		logger.Infof("sweep done: %d candles over %d symbols", rep.Collected, rep.Symbols)
		return nil

	case continuousOp:
		queue := collector.NewQueue()
		pool := collector.NewPool(queue, svc.runner, cfg.Collector.Workers)
		sched, err := collector.NewScheduler(collector.SchedulerConfig{
			Queue:        queue,
			Pool:         pool,
			Symbols:      svc.symbols,
			DrainTimeout: drain,
		})
		if err != nil {
			return err
		}
		pool.Start(ctx)
		g, runCtx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return sched.Continuous(runCtx, op.intervals, cfg.Collector.BatchLimit)
		})
		if cfg.Monitor.Enabled {
			server, err := monitorhttp.NewServer(monitorhttp.ServerConfig{
				Addr:       cfg.Monitor.HTTPAddr,
				Control:    svc.control,
				Candles:    svc.candles,
				Thresholds: thresholds(cfg),
			})
			if err != nil {
				return err
			}
			g.Go(func() error { return server.Run(runCtx) })
		}
		logger.Infof("continuous collection started: intervals=%v workers=%d",
			op.intervals, cfg.Collector.Workers)
		return g.Wait()

	case fillOp:
		rep, err := svc.runner.Backfill(ctx, op.symbol, op.interval, op.days)
		if err != nil {
			return err
		}
		if rep.Errors > 0 {
			return fmt.Errorf("backfill finished with %d window errors (collected %d candles)", rep.Errors, rep.Collected)
		}
		logger.Infof("backfill done: %d candles", rep.Collected)
		return nil

	case importOp:
		importer, err := symbols.NewImporter(symbols.ImporterConfig{
			BaseURL:    cfg.Binance.RESTBaseURL,
			QuoteAsset: cfg.Binance.QuoteAsset,
		}, svc.control)
		if err != nil {
			return err
		}
		n, err := importer.Import(ctx)
		if err != nil {
			return err
		}
		logger.Infof("imported %d symbols", n)
		return nil

	case indicatorsOp:
		engine, err := indicator.NewEngine(indicator.EngineConfig{
			Candles: svc.candles,
			Rows:    svc.control,
			History: cfg.Indicator.History,
		})
		if err != nil {
			return err
		}
		syms, err := svc.symbols.List(ctx)
		if err != nil {
			return err
		}
		n, err := engine.Run(ctx, syms, op.interval)
		if err != nil {
			return err
		}
		logger.Infof("indicators stored for %d/%d pairs", n, len(syms))
		return nil

	case signalsOp:
		candles, err := svc.candles.Recent(ctx, op.symbol, op.interval, cfg.Indicator.History)
		if err != nil {
			return err
		}
		if len(candles) == 0 {
			return fmt.Errorf("no stored candles for %s %s, collect first", op.symbol, op.interval)
		}
		snap, err := indicator.Compute(candles, indicator.Settings{})
		if err != nil {
			return err
		}
		snap.Symbol = strings.ToUpper(op.symbol)
		snap.Interval = op.interval
		sigs := indicator.Evaluate(snap, thresholds(cfg))
		if len(sigs) == 0 {
			fmt.Println("no signals")
			return nil
		}
		out, err := yaml.Marshal(sigs)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil

	case reportOp:
		candles, err := svc.candles.Recent(ctx, op.symbol, op.interval, 400)
		if err != nil {
			return err
		}
		if len(candles) == 0 {
			return fmt.Errorf("no stored candles for %s %s, collect first", op.symbol, op.interval)
		}
		snap, err := indicator.Compute(candles, indicator.Settings{})
		if err != nil {
			return err
		}
		if err := report.WriteHTML(op.out, op.symbol, op.interval, candles, snap); err != nil {
			return err
		}
		logger.Infof("report written to %s", op.out)
		return nil
	}
	return fmt.Errorf("unhandled operation %T", op)
}

func thresholds(cfg *config.Config) indicator.Thresholds {
	return indicator.Thresholds{
		RSIOversold:   cfg.Indicator.RSIOversold,
		RSIOverbought: cfg.Indicator.RSIOverbought,
		StochLow:      cfg.Indicator.StochLow,
		StochHigh:     cfg.Indicator.StochHigh,
		VolumeSpike:   cfg.Indicator.VolumeSpike,
	}
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
