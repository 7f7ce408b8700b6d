// Package calculator derives indicator columns from a daily close series.
package calculator

import (
	"github.com/pkg/errors"

	"StockDash/internal/model"
)

var (
	// ErrInvalidParameter marks a misconfigured indicator request.
	ErrInvalidParameter = errors.New("invalid indicator parameter")

	// ErrMissingClose is returned when a non-empty series has no Close column.
	ErrMissingClose = errors.New("series has no Close column")
)

// Validate checks every request before any work is done.
func Validate(reqs []model.IndicatorRequest) error {
	for _, r := range reqs {
		switch r.Kind {
		case model.SMA, model.EMA, model.RSI:
		default:
			return errors.Wrapf(ErrInvalidParameter, "unknown indicator %s", r.Kind)
		}
		if r.Param <= 0 {
			return errors.Wrapf(ErrInvalidParameter, "%s parameter %d", r.Kind, r.Param)
		}
	}
	return nil
}

// Compute returns a copy of series with one column appended per request,
// keeping row count and order. Warm-up rows hold NaN. An empty series is
// returned unchanged.
func Compute(series *model.TimeSeries, reqs []model.IndicatorRequest) (*model.TimeSeries, error) {
	if err := Validate(reqs); err != nil {
		return nil, err
	}
	if series.Empty() {
		return series, nil
	}
	closes, ok := series.Column(model.FieldClose)
	if !ok {
		return nil, ErrMissingClose
	}

	out := series.Clone()
	for _, r := range reqs {
		var (
			values []float64
			err    error
		)
		switch r.Kind {
		case model.SMA:
			values, err = SMA(closes, r.Param)
		case model.EMA:
			values, err = EMA(closes, r.Param)
		case model.RSI:
			values, err = RSI(closes, r.Param)
		}
		if err != nil {
			return nil, err
		}
		out.SetColumn(r.ColumnName(), values)
	}
	return out, nil
}

// WarmupRows returns how many leading rows the requests leave undefined on a
// series without gaps.
func WarmupRows(reqs []model.IndicatorRequest) int {
	n := 0
	for _, r := range reqs {
		w := 0
		switch r.Kind {
		case model.SMA:
			w = r.Param - 1
		case model.RSI:
			w = r.Param
		}
		if w > n {
			n = w
		}
	}
	return n
}
