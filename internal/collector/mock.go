package collector

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"StockDash/internal/model"
)

// MockProvider returns controllable data for development and testing.
// With Bars nil it synthesizes one bar per weekday in the requested range.
type MockProvider struct {
	Price float64
	Bars  []model.OHLCV
	Err   error

	calls atomic.Int64
}

func (m *MockProvider) Name() string { return "mock" }

// Calls returns how many times FetchDaily has been invoked.
func (m *MockProvider) Calls() int { return int(m.calls.Load()) }

// FetchDaily implements Provider.
func (m *MockProvider) FetchDaily(_ context.Context, symbol string, rng model.DateRange) (*model.TimeSeries, error) {
	m.calls.Add(1)
	if m.Err != nil {
		return nil, m.Err
	}

	bars := m.Bars
	if bars == nil {
		bars = GenerateBars(m.Price, rng)
	}
	inRange := make([]model.OHLCV, 0, len(bars))
	for _, b := range bars {
		if rng.Contains(b.Time) {
			inRange = append(inRange, b)
		}
	}
	if len(inRange) == 0 {
		return nil, ErrNoData
	}
	return model.FromBars(symbol, inRange), nil
}

// GenerateBars produces a deterministic gently oscillating bar for every
// weekday in rng.
func GenerateBars(basePrice float64, rng model.DateRange) []model.OHLCV {
	if basePrice <= 0 {
		basePrice = 100
	}
	var bars []model.OHLCV
	i := 0
	for d := rng.Start; !d.After(rng.End); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		p := basePrice * (1 + 0.05*math.Sin(float64(i)/7) + float64(i)*0.0005)
		bars = append(bars, model.OHLCV{
			Time:   d,
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000 + float64(i%5)*10000,
		})
		i++
	}
	return bars
}
