// Package pipeline turns a ticker, a date range and three indicator toggles
// into a trimmed, indicator-enriched series plus summary statistics.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"StockDash/internal/calculator"
	"StockDash/internal/collector"
	"StockDash/internal/logger"
	"StockDash/internal/metrics"
	"StockDash/internal/model"
	"StockDash/internal/sanitizer"
	"StockDash/internal/summary"
)

// Status tells the presentation layer which rendering path to take.
type Status int

const (
	StatusOK Status = iota
	StatusNoData
	StatusFetchError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoData:
		return "no_data"
	case StatusFetchError:
		return "fetch_error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// User-facing messages for the degraded paths.
const (
	MsgInvalidInput     = "Please enter a valid stock ticker and date range"
	MsgNoData           = "No data found for the selected ticker and date range"
	MsgNotEnoughHistory = "Not enough history for the selected indicators, widen the date range"
)

// DefaultStart is the start date used when the input leaves it unset.
var DefaultStart = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// SeriesSource is the cached fetch path.
type SeriesSource interface {
	GetOrFetch(ctx context.Context, ticker string, rng model.DateRange, ttl time.Duration) collector.FetchResult
}

// Input is one dashboard request. Zero Start or End picks the default.
// Indicators, when set, replaces the three toggles.
type Input struct {
	RawTicker  string
	Start      time.Time
	End        time.Time
	SMA        bool
	EMA        bool
	RSI        bool
	Indicators []model.IndicatorRequest
}

// Requests returns the indicator list the input asks for.
func (in Input) Requests() []model.IndicatorRequest {
	if in.Indicators != nil {
		return in.Indicators
	}
	return model.Requests(in.SMA, in.EMA, in.RSI)
}

// Result is everything the presentation layer needs. Series is nil unless
// Status is StatusOK.
type Result struct {
	RunID   string
	Ticker  string
	Range   model.DateRange
	Status  Status
	Message string
	Series  *model.TimeSeries
	Stats   model.Stats
}

// OK reports whether the result carries data to chart.
func (r Result) OK() bool { return r.Status == StatusOK }

// Pipeline runs requests against a SeriesSource.
type Pipeline struct {
	source       SeriesSource
	ttl          time.Duration
	loc          *time.Location
	defaultStart time.Time
	now          func() time.Time
	log          *logger.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTTL sets the cache ttl passed on every fetch.
func WithTTL(d time.Duration) Option { return func(p *Pipeline) { p.ttl = d } }

// WithLocation sets the reference timezone for "today".
func WithLocation(loc *time.Location) Option { return func(p *Pipeline) { p.loc = loc } }

// WithDefaultStart sets the start date used when the input has none.
func WithDefaultStart(t time.Time) Option { return func(p *Pipeline) { p.defaultStart = t } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option { return func(p *Pipeline) { p.log = l } }

// New creates a pipeline reading through source.
func New(source SeriesSource, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:       source,
		ttl:          time.Hour,
		loc:          time.UTC,
		defaultStart: DefaultStart,
		now:          time.Now,
		log:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Location returns the reference timezone.
func (p *Pipeline) Location() *time.Location { return p.loc }

// Range resolves the input dates to a calendar range in the reference zone.
func (p *Pipeline) Range(in Input) model.DateRange {
	start, end := in.Start, in.End
	if start.IsZero() {
		start = p.defaultStart
	}
	if end.IsZero() {
		end = model.Today(p.now(), p.loc)
	}
	return model.NewDateRange(start, end, p.loc)
}

// Run executes one request. Only indicator misconfiguration comes back as
// an error; fetch problems and empty ranges are reported through Status.
func (p *Pipeline) Run(ctx context.Context, in Input) (Result, error) {
	reqs := in.Requests()
	if err := calculator.Validate(reqs); err != nil {
		return Result{}, err
	}

	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log := p.log.Ctx(ctx)

	res := Result{RunID: runID, Range: p.Range(in)}
	defer func() {
		metrics.PipelineRuns.WithLabelValues(res.Status.String()).Inc()
	}()

	ticker, ok := model.ParseTicker(in.RawTicker)
	if !ok || !res.Range.Valid() {
		res.Ticker = ticker
		res.Status = StatusNoData
		res.Message = MsgInvalidInput
		log.Info("rejected input", logger.NewField("raw_ticker", in.RawTicker), logger.NewField("range", res.Range.String()))
		return res, nil
	}
	res.Ticker = ticker
	log = log.With(logger.NewField("ticker", ticker), logger.NewField("range", res.Range.Key()))

	fetched := p.source.GetOrFetch(ctx, ticker, res.Range, p.ttl)
	switch fetched.Outcome {
	case collector.OutcomeFailed:
		res.Status = StatusFetchError
		res.Message = fetched.Message
		log.Warn("fetch failed", logger.NewField("message", fetched.Message))
		return res, nil
	case collector.OutcomeEmpty:
		res.Status = StatusNoData
		res.Message = MsgNoData
		return res, nil
	}

	series, err := sanitizer.Validate(sanitizer.Flatten(fetched.Series))
	if err != nil {
		res.Status = StatusFetchError
		res.Message = "Error loading data: " + err.Error()
		log.Error(err)
		return res, nil
	}

	series, err = calculator.Compute(series, reqs)
	if err != nil {
		return Result{}, errors.Wrap(err, "compute indicators")
	}

	rows := series.Len()
	series = sanitizer.Trim(series)
	if series.Empty() {
		res.Status = StatusNoData
		res.Message = MsgNotEnoughHistory
		log.Info("warm-up consumed every row", logger.NewField("rows", rows))
		return res, nil
	}

	res.Status = StatusOK
	res.Series = series
	res.Stats = summary.Summarize(series)
	log.Info("pipeline complete",
		logger.NewField("rows", series.Len()),
		logger.NewField("trimmed", rows-series.Len()),
		logger.NewField("latest_close", res.Stats.LatestClose),
	)
	return res, nil
}
