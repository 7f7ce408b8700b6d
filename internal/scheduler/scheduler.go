package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"StockDash/internal/logger"
	"StockDash/internal/model"
	"StockDash/internal/notifier"
	"StockDash/internal/pipeline"
	"StockDash/internal/report"
)

// Runner executes one pipeline request.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input) (pipeline.Result, error)
	Location() *time.Location
}

// Sweeper drops expired cache entries.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Sender delivers a rendered report.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler manages the watch-mode cron tasks.
type Scheduler struct {
	Cron     *cron.Cron
	Pipeline Runner
	Cache    Sweeper
	Notifier Sender
	Refresh  pipeline.Input
	Report   report.Options
	Ctx      context.Context

	log *logger.Logger
	mu  sync.Mutex
	// last holds the most recent refresh report.
	last string
}

// NewScheduler creates a new Scheduler. sender may be nil.
func NewScheduler(ctx context.Context, p Runner, c Sweeper, sender Sender, refresh pipeline.Input, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Pipeline: p,
		Cache:    c,
		Notifier: sender,
		Refresh:  refresh,
		Ctx:      ctx,
		log:      log.With(logger.NewField("component", "scheduler")),
	}
}

// RegisterAll registers the refresh and cache sweep tasks.
func (s *Scheduler) RegisterAll(refreshCron, sweepCron string) error {
	if _, err := s.Cron.AddFunc(refreshCron, s.refreshTask); err != nil {
		return errors.Wrap(err, "register refresh task")
	}
	if _, err := s.Cron.AddFunc(sweepCron, s.sweepTask); err != nil {
		return errors.Wrap(err, "register sweep task")
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info("scheduler started", logger.NewField("entries", len(s.Cron.Entries())))
}

// Stop stops the cron scheduler and waits for running tasks.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunRefreshNow executes the refresh task immediately and returns its report.
func (s *Scheduler) RunRefreshNow() string {
	s.refreshTask()
	return s.LastReport()
}

// LastReport returns the most recent refresh report.
func (s *Scheduler) LastReport() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Scheduler) refreshTask() {
	s.log.Info("running refresh task", logger.NewField("ticker", s.Refresh.RawTicker))
	text, err := s.render(s.Ctx, s.Refresh)
	if err != nil {
		s.log.Error(errors.Wrap(err, "refresh"))
		return
	}
	s.mu.Lock()
	s.last = text
	s.mu.Unlock()
	s.trySend(text)
}

func (s *Scheduler) sweepTask() {
	n, err := s.Cache.Sweep(s.Ctx)
	if err != nil {
		s.log.Error(errors.Wrap(err, "cache sweep"))
		return
	}
	s.log.Debug("cache sweep done", logger.NewField("evicted", n))
}

func (s *Scheduler) render(ctx context.Context, in pipeline.Input) (string, error) {
	res, err := s.Pipeline.Run(ctx, in)
	if err != nil {
		return "", err
	}
	s.log.Info("report ready",
		logger.NewField("run_id", res.RunID),
		logger.NewField("ticker", res.Ticker),
		logger.NewField("status", res.Status.String()),
	)
	return report.Format(res, s.Report), nil
}

// Usage lists the chat commands.
const Usage = "Commands:\n" +
	"/report TICKER [START [END]] [sma] [ema] [rsi]\n" +
	"/last\n" +
	"Dates use YYYY-MM-DD."

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return Usage
	}
	switch strings.ToLower(fields[0]) {
	case "/report", "/r":
		in, err := s.ParseReportArgs(fields[1:])
		if err != nil {
			return fmt.Sprintf("%v\n\n%s", err, Usage)
		}
		text, err := s.render(ctx, in)
		if err != nil {
			s.log.Error(err)
			return fmt.Sprintf("invalid request: %v", err)
		}
		return notifier.Preformatted(text)
	case "/last":
		if text := s.LastReport(); text != "" {
			return notifier.Preformatted(text)
		}
		return "No refresh has run yet."
	default:
		return Usage
	}
}

// ParseReportArgs turns "TICKER [START [END]] [sma] [ema] [rsi]" into an
// Input. Without indicator words the refresh indicators are used.
func (s *Scheduler) ParseReportArgs(args []string) (pipeline.Input, error) {
	if len(args) == 0 {
		return pipeline.Input{}, errors.New("missing ticker")
	}
	in := pipeline.Input{RawTicker: args[0]}
	loc := s.Pipeline.Location()

	var dates []string
	var reqs []model.IndicatorRequest
	for _, arg := range args[1:] {
		switch strings.ToLower(arg) {
		case "sma":
			reqs = append(reqs, model.IndicatorRequest{Kind: model.SMA, Param: model.DefaultSMAWindow})
		case "ema":
			reqs = append(reqs, model.IndicatorRequest{Kind: model.EMA, Param: model.DefaultEMASpan})
		case "rsi":
			reqs = append(reqs, model.IndicatorRequest{Kind: model.RSI, Param: model.DefaultRSIPeriod})
		default:
			dates = append(dates, arg)
		}
	}
	if len(dates) > 2 {
		return pipeline.Input{}, errors.Errorf("unexpected argument %q", dates[2])
	}
	if len(dates) > 0 {
		t, err := model.ParseDate(dates[0], loc)
		if err != nil {
			return pipeline.Input{}, err
		}
		in.Start = t
	}
	if len(dates) > 1 {
		t, err := model.ParseDate(dates[1], loc)
		if err != nil {
			return pipeline.Input{}, err
		}
		in.End = t
	}

	if reqs != nil {
		in.Indicators = reqs
	} else {
		in.Indicators = s.Refresh.Requests()
	}
	return in, nil
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, notifier.Preformatted(text), 3); err != nil {
		s.log.Error(errors.Wrap(err, "send report"))
	}
}
