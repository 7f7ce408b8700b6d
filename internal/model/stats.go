package model

import "time"

// Stats holds scalar summary metrics of a finished series.
type Stats struct {
	Available    bool
	FirstDate    time.Time
	LastDate     time.Time
	LatestClose  float64
	PriorClose   float64
	PctChange    float64
	Week52High   float64
	Week52Low    float64
	AvgVolume    float64
	LatestVolume float64
}

// Map returns the stats as a flat mapping of named scalars. Dates are
// rendered with DateLayout. An unavailable summary yields an empty map.
func (s Stats) Map() map[string]any {
	if !s.Available {
		return map[string]any{}
	}
	return map[string]any{
		"first_date":    s.FirstDate.Format(DateLayout),
		"last_date":     s.LastDate.Format(DateLayout),
		"latest_close":  s.LatestClose,
		"prior_close":   s.PriorClose,
		"pct_change":    s.PctChange,
		"week52_high":   s.Week52High,
		"week52_low":    s.Week52Low,
		"avg_volume":    s.AvgVolume,
		"latest_volume": s.LatestVolume,
	}
}
