// Package summary derives the scalar statistics shown next to the chart.
package summary

import (
	"math"

	"StockDash/internal/model"
)

// Summarize derives display scalars from a finished series. An empty series,
// or one missing Close, yields Stats{Available: false}.
func Summarize(series *model.TimeSeries) model.Stats {
	if series.Empty() {
		return model.Stats{}
	}
	closes, ok := series.Column(model.FieldClose)
	if !ok {
		return model.Stats{}
	}

	n := series.Len()
	st := model.Stats{
		Available:   true,
		FirstDate:   series.Dates[0],
		LastDate:    series.Dates[n-1],
		LatestClose: closes[n-1],
		PriorClose:  closes[n-1],
	}
	if n > 1 {
		st.PriorClose = closes[n-2]
	}
	st.PctChange = PctChange(st.LatestClose, st.PriorClose)

	if highs, ok := series.Column(model.FieldHigh); ok {
		st.Week52High, _ = PriceRange(highs)
	}
	if lows, ok := series.Column(model.FieldLow); ok {
		_, st.Week52Low = PriceRange(lows)
	}
	if vols, ok := series.Column(model.FieldVolume); ok {
		st.AvgVolume = Mean(vols)
		st.LatestVolume = vols[n-1]
	}
	return st
}

// PctChange returns (latest-prior)/prior*100, or 0 when prior is 0.
func PctChange(latest, prior float64) float64 {
	if prior == 0 {
		return 0
	}
	return (latest - prior) / prior * 100
}

// PriceRange returns the max and min over every value, skipping NaN. The
// "52 week" high and low cover the whole displayed range, not a trailing
// year. All-NaN or empty input yields 0, 0.
func PriceRange(values []float64) (high, low float64) {
	high = math.Inf(-1)
	low = math.Inf(1)
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if v > high {
			high = v
		}
		if v < low {
			low = v
		}
	}
	if math.IsInf(high, -1) {
		return 0, 0
	}
	return high, low
}

// Mean averages the defined values, 0 when there are none.
func Mean(values []float64) float64 {
	sum, n := 0.0, 0
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
