package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"StockDash/internal/model"
)

// RESTProvider fetches daily bars from a self-hosted bar API:
//
//	GET {base}/api/v1/bars/daily?symbol=AAPL&start=2024-01-02&end=2024-06-28
//
// responding with a JSON array of bars. Columns are flat.
type RESTProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	loc     *time.Location
}

// NewRESTProvider creates a provider for the API rooted at baseURL.
func NewRESTProvider(baseURL, apiKey string, opts ...Option) *RESTProvider {
	o := buildOptions(baseURL, opts)
	return &RESTProvider{
		baseURL: o.baseURL,
		apiKey:  apiKey,
		client:  o.client,
		limiter: newLimiter(o.rateLimit),
		loc:     o.loc,
	}
}

func (p *RESTProvider) Name() string { return "rest" }

// restBar is the expected JSON shape of one bar.
type restBar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// FetchDaily implements Provider.
func (p *RESTProvider) FetchDaily(ctx context.Context, symbol string, rng model.DateRange) (*model.TimeSeries, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rest rate limit")
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("start", rng.Start.Format(model.DateLayout))
	params.Set("end", rng.End.Format(model.DateLayout))
	endpoint := "/api/v1/bars/daily"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s%s?%s", p.baseURL, endpoint, params.Encode()), nil)
	if err != nil {
		return nil, errors.Wrap(err, "rest build request")
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch bars")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint, Message: string(body)}
	}

	var raw []restBar
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decode bars")
	}

	bars := make([]model.OHLCV, 0, len(raw))
	for _, b := range raw {
		day := model.CalendarDate(time.Unix(b.Timestamp, 0).In(p.loc), p.loc)
		if !rng.Contains(day) {
			continue
		}
		bars = append(bars, model.OHLCV{
			Time:   day,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	if len(bars) == 0 {
		return nil, ErrNoData
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return model.FromBars("", bars), nil
}
