// Package sanitizer normalizes raw provider frames and removes rows left
// undefined by indicator warm-up.
package sanitizer

import (
	"sort"
	"time"

	"github.com/pkg/errors"

	"StockDash/internal/model"
)

// ErrMissingColumn is returned by Validate when a base OHLCV column is absent.
var ErrMissingColumn = errors.New("missing base column")

// Flatten collapses (field, symbol) column labels to the field level. The
// first column wins when two labels collapse to the same field. Flatten is
// idempotent, a no-op on flat input, and does not modify raw.
func Flatten(raw *model.TimeSeries) *model.TimeSeries {
	if raw == nil {
		return &model.TimeSeries{}
	}
	out := &model.TimeSeries{Dates: append([]time.Time(nil), raw.Dates...)}
	seen := make(map[string]bool, len(raw.Columns))
	for _, c := range raw.Columns {
		if seen[c.Key.Field] {
			continue
		}
		seen[c.Key.Field] = true
		out.Columns = append(out.Columns, model.Column{
			Key:    model.ColumnKey{Field: c.Key.Field},
			Values: append([]float64(nil), c.Values...),
		})
	}
	return out
}

// Validate projects series onto the base OHLCV columns in canonical order,
// sorts rows by date and keeps the last row of any duplicated date. A missing
// base column is an error. It returns a new series.
func Validate(series *model.TimeSeries) (*model.TimeSeries, error) {
	if series.Empty() {
		return &model.TimeSeries{}, nil
	}
	base := &model.TimeSeries{Dates: series.Dates}
	for _, field := range model.BaseFields {
		values, ok := series.Column(field)
		if !ok {
			return nil, errors.Wrap(ErrMissingColumn, field)
		}
		if len(values) != series.Len() {
			return nil, errors.Errorf("column %s has %d values for %d dates", field, len(values), series.Len())
		}
		base.Columns = append(base.Columns, model.Column{Key: model.ColumnKey{Field: field}, Values: values})
	}

	idx := make([]int, series.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return series.Dates[idx[a]].Before(series.Dates[idx[b]])
	})

	keep := make([]int, 0, len(idx))
	for _, i := range idx {
		if n := len(keep); n > 0 && series.Dates[keep[n-1]].Equal(series.Dates[i]) {
			keep[n-1] = i
			continue
		}
		keep = append(keep, i)
	}
	return selectRows(base, keep), nil
}

// Trim drops every row with an undefined value in any column.
func Trim(series *model.TimeSeries) *model.TimeSeries {
	if series.Empty() {
		return series
	}
	keep := make([]int, 0, series.Len())
	for i := 0; i < series.Len(); i++ {
		if !series.HasNaN(i) {
			keep = append(keep, i)
		}
	}
	return selectRows(series, keep)
}

func selectRows(series *model.TimeSeries, rows []int) *model.TimeSeries {
	out := &model.TimeSeries{
		Dates:   make([]time.Time, len(rows)),
		Columns: make([]model.Column, len(series.Columns)),
	}
	for j, r := range rows {
		out.Dates[j] = series.Dates[r]
	}
	for c, col := range series.Columns {
		values := make([]float64, len(rows))
		for j, r := range rows {
			values[j] = col.Values[r]
		}
		out.Columns[c] = model.Column{Key: col.Key, Values: values}
	}
	return out
}
