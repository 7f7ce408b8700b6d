package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"StockDash/internal/model"
)

const (
	// DefaultYahooBaseURL is the Yahoo Finance chart API root.
	DefaultYahooBaseURL = "https://query1.finance.yahoo.com"

	// DefaultTimeout bounds a single provider request.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is requests per second to a provider.
	DefaultRateLimit = 2
)

// APIError is a non-200 or error payload from a provider.
type APIError struct {
	StatusCode int
	Endpoint   string
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Endpoint, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// YahooProvider fetches daily bars from the Yahoo Finance chart API. Its
// columns carry the requested symbol as a second label level.
type YahooProvider struct {
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
	loc       *time.Location
	SymbolMap map[string]string // maps user-facing symbols to Yahoo tickers
}

// Option configures an HTTP provider.
type Option func(*httpOptions)

type httpOptions struct {
	baseURL   string
	client    *http.Client
	rateLimit float64
	proxyURL  string
	timeout   time.Duration
	loc       *time.Location
}

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option { return func(o *httpOptions) { o.baseURL = u } }

// WithHTTPClient replaces the HTTP client; proxy and timeout options are ignored.
func WithHTTPClient(c *http.Client) Option { return func(o *httpOptions) { o.client = c } }

// WithRateLimit sets requests per second. Zero or less disables throttling.
func WithRateLimit(rps float64) Option { return func(o *httpOptions) { o.rateLimit = rps } }

// WithProxy routes requests through proxyURL.
func WithProxy(proxyURL string) Option { return func(o *httpOptions) { o.proxyURL = proxyURL } }

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option { return func(o *httpOptions) { o.timeout = d } }

// WithLocation sets the zone bar timestamps are converted to before taking
// their calendar date.
func WithLocation(loc *time.Location) Option { return func(o *httpOptions) { o.loc = loc } }

func buildOptions(defaultBase string, opts []Option) httpOptions {
	o := httpOptions{
		baseURL:   defaultBase,
		rateLimit: DefaultRateLimit,
		timeout:   DefaultTimeout,
		loc:       time.UTC,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil {
		transport := &http.Transport{}
		if o.proxyURL != "" {
			if u, err := url.Parse(o.proxyURL); err == nil {
				transport.Proxy = http.ProxyURL(u)
			}
		}
		o.client = &http.Client{Timeout: o.timeout, Transport: transport}
	}
	if o.loc == nil {
		o.loc = time.UTC
	}
	return o
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// NewYahooProvider creates a Yahoo Finance provider.
func NewYahooProvider(opts ...Option) *YahooProvider {
	o := buildOptions(DefaultYahooBaseURL, opts)
	return &YahooProvider{
		baseURL: o.baseURL,
		client:  o.client,
		limiter: newLimiter(o.rateLimit),
		loc:     o.loc,
		SymbolMap: map[string]string{
			"SPX500": "^GSPC",
			"SPX":    "^GSPC",
			"SP500":  "^GSPC",
		},
	}
}

func (p *YahooProvider) Name() string { return "yahoo" }

func (p *YahooProvider) yahooSymbol(symbol string) string {
	if mapped, ok := p.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// yahooChart is the response structure from the chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// at returns values[i], or NaN for a null or missing cell.
func at(values []*float64, i int) float64 {
	if i >= len(values) || values[i] == nil {
		return math.NaN()
	}
	return *values[i]
}

// FetchDaily implements Provider.
func (p *YahooProvider) FetchDaily(ctx context.Context, symbol string, rng model.DateRange) (*model.TimeSeries, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "yahoo rate limit")
	}

	// period2 is exclusive upstream.
	params := url.Values{}
	params.Set("interval", "1d")
	params.Set("period1", strconv.FormatInt(rng.Start.Unix(), 10))
	params.Set("period2", strconv.FormatInt(rng.End.AddDate(0, 0, 1).Unix(), 10))
	params.Set("events", "history")
	endpoint := fmt.Sprintf("/v8/finance/chart/%s", url.PathEscape(p.yahooSymbol(symbol)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "yahoo build request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "yahoo fetch")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "yahoo read body")
	}

	var chart yahooChart
	decodeErr := json.Unmarshal(body, &chart)
	if decodeErr == nil && chart.Chart.Error != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint, Message: chart.Chart.Error.Description}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint, Message: string(body)}
	}
	if decodeErr != nil {
		return nil, errors.Wrap(decodeErr, "yahoo decode")
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 ||
		len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, ErrNoData
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	bars := make([]model.OHLCV, 0, len(result.Timestamp))

	for i, ts := range result.Timestamp {
		o, h, l, c := at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i)
		if math.IsNaN(o) && math.IsNaN(h) && math.IsNaN(l) && math.IsNaN(c) {
			continue // null bars (holidays etc.)
		}
		day := model.CalendarDate(time.Unix(ts, 0).In(p.loc), p.loc)
		if !rng.Contains(day) {
			continue
		}
		bars = append(bars, model.OHLCV{
			Time:   day,
			Open:   o,
			High:   h,
			Low:    l,
			Close:  c,
			Volume: at(quote.Volume, i),
		})
	}
	if len(bars) == 0 {
		return nil, ErrNoData
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return model.FromBars(symbol, bars), nil
}
