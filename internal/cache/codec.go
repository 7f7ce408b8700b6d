package cache

import (
	"encoding/json"
	"math"
	"time"

	"github.com/pkg/errors"

	"StockDash/internal/collector"
	"StockDash/internal/model"
)

// wireEntry is the JSON form used by the SQLite and Redis stores. Values are
// nullable because JSON has no NaN.
type wireEntry struct {
	Outcome    int          `json:"outcome"`
	Message    string       `json:"message,omitempty"`
	InsertedAt time.Time    `json:"inserted_at"`
	TTLMillis  int64        `json:"ttl_ms"`
	Dates      []time.Time  `json:"dates,omitempty"`
	Columns    []wireColumn `json:"columns,omitempty"`
}

type wireColumn struct {
	Field  string     `json:"field"`
	Symbol string     `json:"symbol,omitempty"`
	Values []*float64 `json:"values"`
}

func encodeEntry(e Entry) ([]byte, error) {
	w := wireEntry{
		Outcome:    int(e.Result.Outcome),
		Message:    e.Result.Message,
		InsertedAt: e.InsertedAt,
		TTLMillis:  e.TTL.Milliseconds(),
	}
	if s := e.Result.Series; s != nil {
		w.Dates = s.Dates
		for _, c := range s.Columns {
			wc := wireColumn{Field: c.Key.Field, Symbol: c.Key.Symbol, Values: make([]*float64, len(c.Values))}
			for i, v := range c.Values {
				if !math.IsNaN(v) {
					v := v
					wc.Values[i] = &v
				}
			}
			w.Columns = append(w.Columns, wc)
		}
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, errors.Wrap(err, "encode cache entry")
	}
	return data, nil
}

func decodeEntry(data []byte) (Entry, error) {
	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return Entry{}, errors.Wrap(err, "decode cache entry")
	}
	e := Entry{
		Result: collector.FetchResult{
			Outcome: collector.Outcome(w.Outcome),
			Message: w.Message,
		},
		InsertedAt: w.InsertedAt,
		TTL:        time.Duration(w.TTLMillis) * time.Millisecond,
	}
	if w.Dates != nil || w.Columns != nil {
		s := &model.TimeSeries{Dates: w.Dates}
		for _, wc := range w.Columns {
			values := make([]float64, len(wc.Values))
			for i, v := range wc.Values {
				if v == nil {
					values[i] = math.NaN()
				} else {
					values[i] = *v
				}
			}
			s.Columns = append(s.Columns, model.Column{Key: model.ColumnKey{Field: wc.Field, Symbol: wc.Symbol}, Values: values})
		}
		e.Result.Series = s
	}
	return e, nil
}
