package model

import (
	"math"
	"time"
)

// Base OHLCV field names.
const (
	FieldOpen   = "Open"
	FieldHigh   = "High"
	FieldLow    = "Low"
	FieldClose  = "Close"
	FieldVolume = "Volume"
)

// BaseFields lists the OHLCV columns in display order.
var BaseFields = []string{FieldOpen, FieldHigh, FieldLow, FieldClose, FieldVolume}

// OHLCV represents a single daily bar.
type OHLCV struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// ColumnKey labels a column. Providers that return several symbols in one
// frame set Symbol, giving a two-level (field, symbol) label.
type ColumnKey struct {
	Field  string
	Symbol string
}

// Column is one named metric aligned with TimeSeries.Dates.
type Column struct {
	Key    ColumnKey
	Values []float64
}

// TimeSeries is a date-ascending table of float columns. Undefined cells are NaN.
type TimeSeries struct {
	Dates   []time.Time
	Columns []Column
}

// Len returns the row count.
func (s *TimeSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Dates)
}

// Empty reports whether the series has no rows.
func (s *TimeSeries) Empty() bool { return s.Len() == 0 }

// Column returns the values of the first column whose field matches name.
func (s *TimeSeries) Column(name string) ([]float64, bool) {
	if s == nil {
		return nil, false
	}
	for _, c := range s.Columns {
		if c.Key.Field == name {
			return c.Values, true
		}
	}
	return nil, false
}

// Names returns the column field names in order.
func (s *TimeSeries) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Key.Field
	}
	return names
}

// Labelled reports whether any column carries a second label level.
func (s *TimeSeries) Labelled() bool {
	if s == nil {
		return false
	}
	for _, c := range s.Columns {
		if c.Key.Symbol != "" {
			return true
		}
	}
	return false
}

// SetColumn replaces the column named name or appends a new flat one.
func (s *TimeSeries) SetColumn(name string, values []float64) {
	for i, c := range s.Columns {
		if c.Key.Field == name {
			s.Columns[i].Values = values
			return
		}
	}
	s.Columns = append(s.Columns, Column{Key: ColumnKey{Field: name}, Values: values})
}

// Row returns the values of row i keyed by field name.
func (s *TimeSeries) Row(i int) map[string]float64 {
	row := make(map[string]float64, len(s.Columns))
	for _, c := range s.Columns {
		row[c.Key.Field] = c.Values[i]
	}
	return row
}

// Clone returns a deep copy.
func (s *TimeSeries) Clone() *TimeSeries {
	if s == nil {
		return nil
	}
	out := &TimeSeries{
		Dates:   append([]time.Time(nil), s.Dates...),
		Columns: make([]Column, len(s.Columns)),
	}
	for i, c := range s.Columns {
		out.Columns[i] = Column{Key: c.Key, Values: append([]float64(nil), c.Values...)}
	}
	return out
}

// FromBars builds a series from bars. A non-empty symbol labels every
// column with it.
func FromBars(symbol string, bars []OHLCV) *TimeSeries {
	s := &TimeSeries{Dates: make([]time.Time, len(bars))}
	cols := make([][]float64, len(BaseFields))
	for i := range cols {
		cols[i] = make([]float64, len(bars))
	}
	for i, b := range bars {
		s.Dates[i] = b.Time
		cols[0][i] = b.Open
		cols[1][i] = b.High
		cols[2][i] = b.Low
		cols[3][i] = b.Close
		cols[4][i] = b.Volume
	}
	for i, f := range BaseFields {
		s.Columns = append(s.Columns, Column{Key: ColumnKey{Field: f, Symbol: symbol}, Values: cols[i]})
	}
	return s
}

// HasNaN reports whether any cell in row i is undefined.
func (s *TimeSeries) HasNaN(i int) bool {
	for _, c := range s.Columns {
		if math.IsNaN(c.Values[i]) {
			return true
		}
	}
	return false
}
