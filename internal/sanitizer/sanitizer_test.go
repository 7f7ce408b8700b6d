package sanitizer

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockDash/internal/calculator"
	"StockDash/internal/model"
)

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func bars(n int) []model.OHLCV {
	out := make([]model.OHLCV, n)
	for i := range out {
		c := 100 + float64(i%7) + float64(i)*0.1
		out[i] = model.OHLCV{Time: day0.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1000 + float64(i)}
	}
	return out
}

func TestFlatten_CollapsesSymbolLevel(t *testing.T) {
	raw := model.FromBars("AAPL", bars(3))
	require.True(t, raw.Labelled())

	flat := Flatten(raw)
	assert.False(t, flat.Labelled())
	assert.Equal(t, model.BaseFields, flat.Names())
	assert.True(t, raw.Labelled(), "input must not be mutated")
}

func TestFlatten_Idempotent(t *testing.T) {
	raw := model.FromBars("AAPL", bars(10))
	once := Flatten(raw)
	twice := Flatten(once)
	assert.Equal(t, once, twice)
}

func TestFlatten_NoOpOnFlatInput(t *testing.T) {
	flat := model.FromBars("", bars(5))
	flat.SetColumn("Adj Close", make([]float64, 5))
	assert.Equal(t, flat, Flatten(flat))
}

func TestFlatten_DuplicateFieldKeepsFirst(t *testing.T) {
	s := &model.TimeSeries{
		Dates: []time.Time{day0},
		Columns: []model.Column{
			{Key: model.ColumnKey{Field: "Close", Symbol: "AAPL"}, Values: []float64{1}},
			{Key: model.ColumnKey{Field: "Close", Symbol: "MSFT"}, Values: []float64{2}},
		},
	}
	out := Flatten(s)
	require.Len(t, out.Columns, 1)
	assert.Equal(t, []float64{1}, out.Columns[0].Values)
}

func TestFlatten_Nil(t *testing.T) {
	assert.True(t, Flatten(nil).Empty())
}

func TestValidate_SortsDedupesAndProjects(t *testing.T) {
	b := bars(3)
	dup := b[1]
	dup.Close = 555
	s := model.FromBars("", []model.OHLCV{b[2], b[0], b[1], dup})
	s.SetColumn("Adj Close", []float64{1, 2, 3, 4})

	out, err := Validate(s)
	require.NoError(t, err)

	assert.Equal(t, []time.Time{b[0].Time, b[1].Time, b[2].Time}, out.Dates)
	assert.Equal(t, model.BaseFields, out.Names())
	closes, _ := out.Column(model.FieldClose)
	assert.Equal(t, 555.0, closes[1])
}

func TestValidate_MissingColumn(t *testing.T) {
	s := model.FromBars("", bars(2))
	s.Columns = s.Columns[:4]
	_, err := Validate(s)
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestValidate_Empty(t *testing.T) {
	out, err := Validate(&model.TimeSeries{})
	require.NoError(t, err)
	assert.True(t, out.Empty())
}

func TestTrim_SMA50On100Rows(t *testing.T) {
	s, err := calculator.Compute(model.FromBars("", bars(100)), model.Requests(true, false, false))
	require.NoError(t, err)

	out := Trim(s)
	assert.Equal(t, 51, out.Len())
	assert.Equal(t, s.Dates[49], out.Dates[0])
	assert.Equal(t, s.Dates[99], out.Dates[50])
}

func TestTrim_BoundedByLongestWarmup(t *testing.T) {
	tests := []struct {
		sma, ema, rsi bool
		want          int
	}{
		{false, false, false, 100},
		{false, true, false, 100},
		{false, false, true, 86},
		{false, true, true, 86},
		{true, true, true, 51},
	}
	for _, tt := range tests {
		reqs := model.Requests(tt.sma, tt.ema, tt.rsi)
		s, err := calculator.Compute(model.FromBars("", bars(100)), reqs)
		require.NoError(t, err)

		out := Trim(s)
		assert.Equal(t, tt.want, out.Len(), "sma=%v ema=%v rsi=%v", tt.sma, tt.ema, tt.rsi)
		assert.Equal(t, 100-calculator.WarmupRows(reqs), out.Len())
	}
}

func TestTrim_DropsInteriorNaN(t *testing.T) {
	s := model.FromBars("", bars(4))
	vols, _ := s.Column(model.FieldVolume)
	vols[2] = math.NaN()

	out := Trim(s)
	assert.Equal(t, 3, out.Len())
	assert.NotContains(t, out.Dates, s.Dates[2])
}

func TestTrim_Empty(t *testing.T) {
	assert.True(t, Trim(&model.TimeSeries{}).Empty())
}
