package alerts

import "fmt"

// Thresholds configures every alert rule. The zero value of a field in an
// override means "inherit".
type Thresholds struct {
	// LowStock flags products with stock strictly below it.
	LowStock int64 `yaml:"low_stock" json:"low_stock"`
	// OverdueDays flags clients whose last payment is strictly older.
	OverdueDays int `yaml:"overdue_days" json:"overdue_days"`
	// PendingSalesHigh and PendingSalesCritical are strict tiers on the pending sales count.
	PendingSalesHigh     int `yaml:"pending_sales_high" json:"pending_sales_high"`
	PendingSalesCritical int `yaml:"pending_sales_critical" json:"pending_sales_critical"`
	// DebtAbove flags clients whose debt is strictly greater.
	DebtAbove float64 `yaml:"debt_above" json:"debt_above"`
	// TrendDecline and TrendGrowth are strict percent bounds.
	TrendDecline float64 `yaml:"trend_decline" json:"trend_decline"`
	TrendGrowth  float64 `yaml:"trend_growth" json:"trend_growth"`
	TrendEpsilon float64 `yaml:"trend_epsilon" json:"trend_epsilon"`
	// ZScoreMedium and ZScoreHigh are strict bounds on |z|.
	ZScoreMedium float64 `yaml:"zscore_medium" json:"zscore_medium"`
	ZScoreHigh   float64 `yaml:"zscore_high" json:"zscore_high"`
}

// DefaultThresholds mirrors the dashboard panels.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LowStock:             10,
		OverdueDays:          30,
		PendingSalesHigh:     5,
		PendingSalesCritical: 10,
		DebtAbove:            0,
		TrendDecline:         -10,
		TrendGrowth:          20,
		TrendEpsilon:         0,
		ZScoreMedium:         3,
		ZScoreHigh:           4,
	}
}

// Merge overlays the non-zero fields of override onto t.
func (t Thresholds) Merge(override Thresholds) Thresholds {
	if override.LowStock != 0 {
		t.LowStock = override.LowStock
	}
	if override.OverdueDays != 0 {
		t.OverdueDays = override.OverdueDays
	}
	if override.PendingSalesHigh != 0 {
		t.PendingSalesHigh = override.PendingSalesHigh
	}
	if override.PendingSalesCritical != 0 {
		t.PendingSalesCritical = override.PendingSalesCritical
	}
	if override.DebtAbove != 0 {
		t.DebtAbove = override.DebtAbove
	}
	if override.TrendDecline != 0 {
		t.TrendDecline = override.TrendDecline
	}
	if override.TrendGrowth != 0 {
		t.TrendGrowth = override.TrendGrowth
	}
	if override.TrendEpsilon != 0 {
		t.TrendEpsilon = override.TrendEpsilon
	}
	if override.ZScoreMedium != 0 {
		t.ZScoreMedium = override.ZScoreMedium
	}
	if override.ZScoreHigh != 0 {
		t.ZScoreHigh = override.ZScoreHigh
	}
	return t
}

// Validate checks tier ordering.
func (t Thresholds) Validate() error {
	if t.PendingSalesCritical < t.PendingSalesHigh {
		return fmt.Errorf("%w: pending_sales_critical below pending_sales_high", ErrInvalidThresholds)
	}
	if t.ZScoreHigh < t.ZScoreMedium {
		return fmt.Errorf("%w: zscore_high below zscore_medium", ErrInvalidThresholds)
	}
	if t.TrendDecline > t.TrendGrowth {
		return fmt.Errorf("%w: trend_decline above trend_growth", ErrInvalidThresholds)
	}
	if t.OverdueDays < 0 || t.LowStock < 0 {
		return fmt.Errorf("%w: negative bound", ErrInvalidThresholds)
	}
	return nil
}
