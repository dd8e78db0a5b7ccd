package statistic

import "github.com/shopspring/decimal"

// TrendDirection classifies a percentage change.
type TrendDirection string

const (
	TrendUp   TrendDirection = "up"
	TrendDown TrendDirection = "down"
	TrendFlat TrendDirection = "flat"
)

// Trend compares a current aggregate against the previous period.
type Trend struct {
	Current       float64        `json:"current"`
	Previous      float64        `json:"previous"`
	PercentChange float64        `json:"percent_change"`
	Direction     TrendDirection `json:"direction"`
}

var hundred = decimal.NewFromInt(100)

// ComputeTrend returns the percentage change from previous to current.
// A zero previous value yields exactly 0. Changes whose magnitude does not
// exceed epsilon are Flat.
func ComputeTrend(current, previous, epsilon float64) Trend {
	var pct float64
	if previous != 0 {
		pct = ((current - previous) / previous) * 100
	}
	return Trend{
		Current:       current,
		Previous:      previous,
		PercentChange: pct,
		Direction:     classify(pct, epsilon),
	}
}

// ComputeTrendDecimal is ComputeTrend evaluated in decimal arithmetic, so
// money aggregates land exactly on threshold boundaries.
func ComputeTrendDecimal(current, previous decimal.Decimal, epsilon float64) Trend {
	var pct float64
	if !previous.IsZero() {
		pct = current.Sub(previous).Div(previous).Mul(hundred).InexactFloat64()
	}
	return Trend{
		Current:       current.InexactFloat64(),
		Previous:      previous.InexactFloat64(),
		PercentChange: pct,
		Direction:     classify(pct, epsilon),
	}
}

func classify(pct, epsilon float64) TrendDirection {
	if epsilon < 0 {
		epsilon = 0
	}
	switch {
	case pct > epsilon:
		return TrendUp
	case pct < -epsilon:
		return TrendDown
	default:
		return TrendFlat
	}
}
