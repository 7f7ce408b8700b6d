package calculator

import (
	"math"

	"github.com/pkg/errors"
)

// SMA returns the trailing simple moving average of values over window rows.
// The first window-1 rows, and any row whose window contains a NaN, are NaN.
func SMA(values []float64, window int) ([]float64, error) {
	if window <= 0 {
		return nil, errors.Wrapf(ErrInvalidParameter, "sma window %d", window)
	}
	out := make([]float64, len(values))
	var sum float64
	nans := 0
	for i, v := range values {
		if math.IsNaN(v) {
			nans++
		} else {
			sum += v
		}
		if i >= window {
			if old := values[i-window]; math.IsNaN(old) {
				nans--
			} else {
				sum -= old
			}
		}
		if i < window-1 || nans > 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(window)
	}
	return out, nil
}

// EMA returns the exponential moving average with alpha = 2/(span+1),
// seeded with the first defined value and updated with
// ema[t] = alpha*v[t] + (1-alpha)*ema[t-1]. NaN inputs carry the previous
// average forward.
func EMA(values []float64, span int) ([]float64, error) {
	if span <= 0 {
		return nil, errors.Wrapf(ErrInvalidParameter, "ema span %d", span)
	}
	return ewm(values, 2.0/float64(span+1)), nil
}

func ewm(values []float64, alpha float64) []float64 {
	out := make([]float64, len(values))
	current := math.NaN()
	for i, v := range values {
		switch {
		case math.IsNaN(v):
		case math.IsNaN(current):
			current = v
		default:
			current = alpha*v + (1-alpha)*current
		}
		out[i] = current
	}
	return out
}
