package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"StockDash/internal/logger"
	"StockDash/internal/metrics"
	"StockDash/internal/model"
)

// ErrNoData is returned by providers when a query succeeded but matched no bars.
var ErrNoData = errors.New("no data returned")

// Provider is a raw daily bar source.
type Provider interface {
	Name() string
	// FetchDaily returns bars for symbol with dates inside rng (both ends
	// inclusive). It returns ErrNoData when the provider has nothing for the range.
	FetchDaily(ctx context.Context, symbol string, rng model.DateRange) (*model.TimeSeries, error)
}

// Outcome classifies a fetch.
type Outcome int

const (
	OutcomeData Outcome = iota
	OutcomeEmpty
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeData:
		return "data"
	case OutcomeEmpty:
		return "empty"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// FetchResult is the outcome of one fetch. Series is set only for
// OutcomeData; Message explains empty and failed results.
type FetchResult struct {
	Outcome Outcome
	Series  *model.TimeSeries
	Message string
}

// Source is anything that can produce a FetchResult for a ticker and range.
type Source interface {
	Fetch(ctx context.Context, ticker string, rng model.DateRange) FetchResult
}

// Fetcher wraps a Provider so that failures come back as results instead
// of errors.
type Fetcher struct {
	provider Provider
	log      *logger.Logger
}

// NewFetcher creates a Fetcher around p.
func NewFetcher(p Provider, log *logger.Logger) *Fetcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Fetcher{provider: p, log: log.With(logger.NewField("provider", p.Name()))}
}

// Name returns the underlying provider name.
func (f *Fetcher) Name() string { return f.provider.Name() }

// Fetch queries the provider once. It never panics and never returns an error:
// an invalid request or a no-data response yields OutcomeEmpty, anything else
// that goes wrong yields OutcomeFailed.
func (f *Fetcher) Fetch(ctx context.Context, ticker string, rng model.DateRange) (res FetchResult) {
	if ticker == "" {
		return FetchResult{Outcome: OutcomeEmpty, Message: "please enter a valid stock ticker"}
	}
	if !rng.Valid() {
		return FetchResult{Outcome: OutcomeEmpty, Message: fmt.Sprintf("invalid date range %s", rng)}
	}

	log := f.log.Ctx(ctx).With(logger.NewField("ticker", ticker), logger.NewField("range", rng.Key()))
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error(errors.Errorf("provider panic: %v", r))
			res = FetchResult{Outcome: OutcomeFailed, Message: fmt.Sprintf("Error loading data: %v", r)}
		}
		metrics.FetchLatency.WithLabelValues(f.provider.Name()).Observe(time.Since(started).Seconds())
		metrics.FetchOutcomes.WithLabelValues(f.provider.Name(), res.Outcome.String()).Inc()
	}()

	series, err := f.provider.FetchDaily(ctx, ticker, rng)
	switch {
	case errors.Is(err, ErrNoData):
		log.Info("provider returned no data")
		return FetchResult{Outcome: OutcomeEmpty, Message: fmt.Sprintf("no data for %s between %s", ticker, rng)}
	case err != nil:
		log.Error(errors.Wrap(err, "fetch daily bars"))
		return FetchResult{Outcome: OutcomeFailed, Message: fmt.Sprintf("Error loading data: %v", err)}
	case series.Empty():
		log.Info("provider returned an empty series")
		return FetchResult{Outcome: OutcomeEmpty, Message: fmt.Sprintf("no data for %s between %s", ticker, rng)}
	}

	log.Debug("fetched daily bars", logger.NewField("rows", series.Len()))
	return FetchResult{Outcome: OutcomeData, Series: series}
}
