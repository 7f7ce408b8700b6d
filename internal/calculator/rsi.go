package calculator

import (
	"math"

	"github.com/pkg/errors"
)

// RSI returns the relative strength index of values. Daily gains and losses
// are smoothed with alpha = 1/period starting from the first delta, and the
// index is defined once period deltas have been seen (row period onwards).
// When the average loss is zero the index is 100. Deltas touching a NaN
// value are skipped: they neither update the averages nor count toward
// the warm-up, and the output stays NaN on those rows.
func RSI(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, errors.Wrapf(ErrInvalidParameter, "rsi period %d", period)
	}
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}

	alpha := 1.0 / float64(period)
	var avgGain, avgLoss float64
	seen := 0
	for i := 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		if math.IsNaN(change) {
			continue
		}
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else if change < 0 {
			loss = -change
		}

		seen++
		if seen == 1 {
			avgGain, avgLoss = gain, loss
		} else {
			avgGain = alpha*gain + (1-alpha)*avgGain
			avgLoss = alpha*loss + (1-alpha)*avgLoss
		}
		if seen < period {
			continue
		}

		if avgLoss == 0 {
			out[i] = 100.0
			continue
		}
		rs := avgGain / avgLoss
		out[i] = 100.0 - 100.0/(1.0+rs)
	}
	return out, nil
}
