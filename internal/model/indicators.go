package model

import "fmt"

// Indicator identifies a technical indicator kind.
type Indicator int

const (
	SMA Indicator = iota + 1
	EMA
	RSI
)

// Fixed indicator parameters.
const (
	DefaultSMAWindow = 50
	DefaultEMASpan   = 20
	DefaultRSIPeriod = 14
)

func (i Indicator) String() string {
	switch i {
	case SMA:
		return "SMA"
	case EMA:
		return "EMA"
	case RSI:
		return "RSI"
	default:
		return fmt.Sprintf("Indicator(%d)", int(i))
	}
}

// IndicatorRequest asks for one indicator column. Param is the SMA window,
// EMA span or RSI period.
type IndicatorRequest struct {
	Kind  Indicator
	Param int
}

// ColumnName returns the deterministic output column name.
func (r IndicatorRequest) ColumnName() string {
	switch r.Kind {
	case SMA:
		return fmt.Sprintf("SMA_%d", r.Param)
	case EMA:
		return fmt.Sprintf("EMA_%d", r.Param)
	case RSI:
		return "RSI"
	default:
		return r.Kind.String()
	}
}

// Requests builds the request list from the three indicator toggles.
func Requests(sma, ema, rsi bool) []IndicatorRequest {
	var reqs []IndicatorRequest
	if sma {
		reqs = append(reqs, IndicatorRequest{Kind: SMA, Param: DefaultSMAWindow})
	}
	if ema {
		reqs = append(reqs, IndicatorRequest{Kind: EMA, Param: DefaultEMASpan})
	}
	if rsi {
		reqs = append(reqs, IndicatorRequest{Kind: RSI, Param: DefaultRSIPeriod})
	}
	return reqs
}
