package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"StockDash/internal/cache"
	"StockDash/internal/collector"
	"StockDash/internal/config"
	"StockDash/internal/logger"
	"StockDash/internal/model"
	"StockDash/internal/notifier"
	"StockDash/internal/pipeline"
	"StockDash/internal/report"
	"StockDash/internal/scheduler"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Configuration file path")
	ticker     = flag.String("ticker", "", "Stock ticker, first token is used (default from config)")
	startDate  = flag.String("start", "", "Start date YYYY-MM-DD (default from config)")
	endDate    = flag.String("end", "", "End date YYYY-MM-DD (default today)")
	showSMA    = flag.Bool("sma", false, "Add the simple moving average")
	showEMA    = flag.Bool("ema", false, "Add the exponential moving average")
	showRSI    = flag.Bool("rsi", false, "Add the relative strength index")
	metricList = flag.String("metrics", "Close", "Comma-separated columns to summarize")
	showRaw    = flag.Bool("raw", false, "Print the row table, newest first")
	maxRows    = flag.Int("rows", 20, "Row table limit, 0 for all")
	watch      = flag.Bool("watch", false, "Keep running: scheduled refresh, cache sweep, metrics endpoint")
	runOnStart = flag.Bool("run-on-start", false, "In watch mode, refresh once immediately")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	if v := os.Getenv("CONFIG_PATH"); v != "" && !flagSet("config") {
		*configPath = v
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config validation: %v\n", err)
		return 1
	}

	log, err := logger.New(cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	loc, _ := cfg.Location()
	defaultStart, _ := cfg.DefaultStart()

	provider := buildProvider(cfg, loc)
	log.Info("data source ready", logger.NewField("provider", provider.Name()))

	store, err := buildStore(ctx, cfg)
	if err != nil {
		log.Error(err)
		return 1
	}
	seriesCache := cache.New(collector.NewFetcher(provider, log),
		cache.WithStore(store),
		cache.WithEmptyTTL(cfg.Cache.EmptyTTL),
		cache.WithLogger(log),
	)
	defer seriesCache.Close()
	log.Info("cache ready",
		logger.NewField("backend", cfg.Cache.Backend),
		logger.NewField("ttl", cfg.Cache.TTL.String()),
	)

	pipe := pipeline.New(seriesCache,
		pipeline.WithTTL(cfg.Cache.TTL),
		pipeline.WithLocation(loc),
		pipeline.WithDefaultStart(defaultStart),
		pipeline.WithLogger(log),
	)

	in, err := buildInput(cfg, loc)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	opts := report.Options{Metrics: splitList(*metricList), ShowRaw: *showRaw, MaxRows: *maxRows}

	if *watch {
		return runWatch(ctx, cfg, log, pipe, seriesCache, in, opts)
	}

	res, err := pipe.Run(ctx, in)
	if err != nil {
		log.Error(err)
		fmt.Fprintf(os.Stderr, "invalid request: %v\n", err)
		return 1
	}
	fmt.Print(report.Format(res, opts))
	if res.Status == pipeline.StatusFetchError {
		return 2
	}
	return 0
}

func runWatch(ctx context.Context, cfg *config.Config, log *logger.Logger, pipe *pipeline.Pipeline, c *cache.SeriesCache, in pipeline.Input, opts report.Options) int {
	var sender scheduler.Sender
	var tn *notifier.TelegramNotifier
	if cfg.Telegram.BotToken != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
		sender = tn
	}

	sched := scheduler.NewScheduler(ctx, pipe, c, sender, in, log)
	sched.Report = opts
	if err := sched.RegisterAll(cfg.Schedule.RefreshCron, cfg.Schedule.SweepCron); err != nil {
		log.Error(err)
		return 1
	}
	sched.Start()
	defer sched.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, logger.NewField("addr", cfg.Metrics.Addr))
		}
	}()
	log.Info("metrics endpoint listening", logger.NewField("addr", cfg.Metrics.Addr))

	if tn != nil && cfg.Telegram.Polling {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info("telegram polling started")
	}

	if *runOnStart {
		go func() { fmt.Print(sched.RunRefreshNow()) }()
	}

	log.Info("StockDash is running, press Ctrl+C to stop",
		logger.NewField("ticker", in.RawTicker),
		logger.NewField("refresh_cron", cfg.Schedule.RefreshCron),
	)
	<-ctx.Done()

	log.Info("shutdown signal received, stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err)
	}
	return 0
}

func buildProvider(cfg *config.Config, loc *time.Location) collector.Provider {
	opts := []collector.Option{
		collector.WithProxy(cfg.Proxy),
		collector.WithRateLimit(cfg.DataSource.RateLimit),
		collector.WithTimeout(cfg.DataSource.Timeout),
		collector.WithLocation(loc),
	}
	switch strings.ToLower(cfg.DataSource.Provider) {
	case config.ProviderREST:
		return collector.NewRESTProvider(cfg.DataSource.BaseURL, cfg.DataSource.APIKey, opts...)
	case config.ProviderMock:
		return &collector.MockProvider{}
	default:
		if cfg.DataSource.BaseURL != "" {
			opts = append(opts, collector.WithBaseURL(cfg.DataSource.BaseURL))
		}
		return collector.NewYahooProvider(opts...)
	}
}

func buildStore(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	switch strings.ToLower(cfg.Cache.Backend) {
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Cache.SQLitePath), 0o755); err != nil {
			return nil, errors.Wrap(err, "create cache dir")
		}
		return cache.NewSQLiteStore(cfg.Cache.SQLitePath)
	case config.BackendRedis:
		return cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
	default:
		return cache.NewMemoryStore(), nil
	}
}

// buildInput merges flags over the configured defaults. Indicator flags
// that were not passed keep the config toggles.
func buildInput(cfg *config.Config, loc *time.Location) (pipeline.Input, error) {
	in := pipeline.Input{RawTicker: *ticker}
	if in.RawTicker == "" {
		in.RawTicker = cfg.App.DefaultTicker
	}
	if *startDate != "" {
		t, err := model.ParseDate(*startDate, loc)
		if err != nil {
			return in, err
		}
		in.Start = t
	}
	if *endDate != "" {
		t, err := model.ParseDate(*endDate, loc)
		if err != nil {
			return in, err
		}
		in.End = t
	}

	ind := cfg.Indicators
	if flagSet("sma") {
		ind.SMA = *showSMA
	}
	if flagSet("ema") {
		ind.EMA = *showEMA
	}
	if flagSet("rsi") {
		ind.RSI = *showRSI
	}
	merged := config.Config{Indicators: ind}
	in.Indicators = merged.Requests()
	if in.Indicators == nil {
		in.Indicators = []model.IndicatorRequest{}
	}
	return in, nil
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if out == nil {
		return []string{}
	}
	return out
}
