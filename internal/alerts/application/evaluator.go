package application

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	alerts "flowdistributor/internal/alerts/domain"
	statistic "flowdistributor/internal/analytics/domain/statistic"
	ledger "flowdistributor/internal/ledger/domain"
)

// AccountSnapshot carries one account's derived figures into the evaluator.
type AccountSnapshot struct {
	AccountID   string
	DisplayName string
	// Balance is the stored rfActual value; rules only read it when HasBalance is set.
	Balance    decimal.Decimal
	HasBalance bool
	Trend      statistic.Trend
	HasTrend   bool
	// Cohorts group entries whose amounts are compared to each other.
	Cohorts []Cohort
}

// Cohort is a named set of entries scored together by the outlier rule.
type Cohort struct {
	Name    string
	Entries []ledger.Entry
}

// Snapshot is the full input of one evaluation pass.
type Snapshot struct {
	Now          time.Time
	Accounts     []AccountSnapshot
	Products     []ledger.Product
	Clients      []ledger.Client
	PendingSales int
}

// ThresholdResolver returns the thresholds for an account id; an empty id
// asks for the global thresholds.
type ThresholdResolver func(accountID string) alerts.Thresholds

// Evaluator turns a snapshot into alerts. It keeps no state between passes.
type Evaluator struct {
	thresholds ThresholdResolver
}

// EvaluatorOption customizes the evaluator.
type EvaluatorOption func(*Evaluator)

// WithThresholds sets fixed thresholds for every subject.
func WithThresholds(t alerts.Thresholds) EvaluatorOption {
	return func(e *Evaluator) {
		e.thresholds = func(string) alerts.Thresholds { return t }
	}
}

// WithThresholdResolver sets per-account thresholds.
func WithThresholdResolver(resolver ThresholdResolver) EvaluatorOption {
	return func(e *Evaluator) {
		if resolver != nil {
			e.thresholds = resolver
		}
	}
}

// NewEvaluator constructs an evaluator using DefaultThresholds unless overridden.
func NewEvaluator(opts ...EvaluatorOption) *Evaluator {
	defaults := alerts.DefaultThresholds()
	e := &Evaluator{thresholds: func(string) alerts.Thresholds { return defaults }}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs every rule and returns the alerts sorted by severity.
func (e *Evaluator) Evaluate(snap Snapshot) []alerts.Alert {
	if e == nil {
		return nil
	}
	var out []alerts.Alert
	for _, account := range snap.Accounts {
		t := e.thresholds(account.AccountID)
		out = append(out, negativeBalance(account)...)
		out = append(out, trendShift(account, t)...)
		for _, cohort := range account.Cohorts {
			out = append(out, outliers(account, cohort, t)...)
		}
	}

	global := e.thresholds("")
	out = append(out, lowStock(snap.Products, global)...)
	out = append(out, overdueClients(snap.Clients, snap.Now, global)...)
	out = append(out, pendingSales(snap.PendingSales, global)...)
	out = append(out, debtExposure(snap.Clients, global)...)

	alerts.SortBySeverity(out)
	return out
}

func accountLabel(a AccountSnapshot) string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.AccountID
}

func negativeBalance(a AccountSnapshot) []alerts.Alert {
	if !a.HasBalance || !a.Balance.IsNegative() {
		return nil
	}
	return []alerts.Alert{alerts.New(
		alerts.KindNegativeBalance,
		alerts.SeverityCritical,
		"account:"+a.AccountID,
		fmt.Sprintf("%s has a negative balance of %s", accountLabel(a), a.Balance.StringFixed(2)),
	)}
}

func trendShift(a AccountSnapshot, t alerts.Thresholds) []alerts.Alert {
	if !a.HasTrend {
		return nil
	}
	pct := a.Trend.PercentChange
	subject := "account:" + a.AccountID
	switch {
	case pct < t.TrendDecline:
		return []alerts.Alert{alerts.New(
			alerts.KindTrendShift,
			alerts.SeverityCritical,
			subject,
			fmt.Sprintf("%s is declining %.2f%% against the previous period", accountLabel(a), pct),
		)}
	case pct > t.TrendGrowth:
		return []alerts.Alert{alerts.New(
			alerts.KindTrendShift,
			alerts.SeverityLow,
			subject,
			fmt.Sprintf("%s is growing %.2f%% against the previous period", accountLabel(a), pct),
		)}
	default:
		return nil
	}
}

// outliers scores each entry with the population z-score of its cohort.
// Mean and variance are computed in decimal so identical amounts give an
// exact zero deviation and the rule is skipped.
func outliers(a AccountSnapshot, cohort Cohort, t alerts.Thresholds) []alerts.Alert {
	n := len(cohort.Entries)
	if n < 2 {
		return nil
	}
	count := decimal.NewFromInt(int64(n))
	sum := decimal.Zero
	for _, entry := range cohort.Entries {
		sum = sum.Add(entry.Amount)
	}
	mean := sum.Div(count)
	squares := decimal.Zero
	for _, entry := range cohort.Entries {
		dev := entry.Amount.Sub(mean)
		squares = squares.Add(dev.Mul(dev))
	}
	if squares.IsZero() {
		return nil
	}
	stddev := math.Sqrt(squares.Div(count).InexactFloat64())
	if stddev == 0 || math.IsNaN(stddev) {
		return nil
	}

	var out []alerts.Alert
	for _, entry := range cohort.Entries {
		z := entry.Amount.Sub(mean).InexactFloat64() / stddev
		abs := math.Abs(z)
		var severity alerts.Severity
		switch {
		case abs > t.ZScoreHigh:
			severity = alerts.SeverityHigh
		case abs > t.ZScoreMedium:
			severity = alerts.SeverityMedium
		default:
			continue
		}
		out = append(out, alerts.New(
			alerts.KindStatisticalOutlier,
			severity,
			"entry:"+a.AccountID+"/"+cohort.Name+"/"+entry.ID,
			fmt.Sprintf("%s %s entry %s of %s is %.2f standard deviations from the mean",
				accountLabel(a), cohort.Name, entry.ID, entry.Amount.StringFixed(2), z),
		))
	}
	return out
}

func lowStock(products []ledger.Product, t alerts.Thresholds) []alerts.Alert {
	var names []string
	for _, p := range products {
		if p.Stock < t.LowStock {
			names = append(names, productLabel(p))
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	return []alerts.Alert{alerts.New(
		alerts.KindLowStockInfo,
		alerts.SeverityHigh,
		"products",
		fmt.Sprintf("%d products below %d units: %s", len(names), t.LowStock, strings.Join(names, ", ")),
	)}
}

func productLabel(p ledger.Product) string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

func overdueClients(clients []ledger.Client, now time.Time, t alerts.Thresholds) []alerts.Alert {
	if now.IsZero() {
		now = time.Now()
	}
	var names []string
	for _, c := range clients {
		days, ok := c.DaysSinceLastPayment(now)
		if ok && days > t.OverdueDays {
			names = append(names, clientLabel(c))
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	return []alerts.Alert{alerts.New(
		alerts.KindOverdueReceivable,
		alerts.SeverityCritical,
		"clients",
		fmt.Sprintf("%d clients without payment for more than %d days: %s", len(names), t.OverdueDays, strings.Join(names, ", ")),
	)}
}

func pendingSales(pending int, t alerts.Thresholds) []alerts.Alert {
	var severity alerts.Severity
	switch {
	case pending > t.PendingSalesCritical:
		severity = alerts.SeverityCritical
	case pending > t.PendingSalesHigh:
		severity = alerts.SeverityHigh
	default:
		return nil
	}
	return []alerts.Alert{alerts.New(
		alerts.KindOverdueReceivable,
		severity,
		"sales",
		fmt.Sprintf("%d sales pending payment", pending),
	)}
}

func debtExposure(clients []ledger.Client, t alerts.Thresholds) []alerts.Alert {
	limit := decimal.NewFromFloat(t.DebtAbove)
	total := decimal.Zero
	count := 0
	for _, c := range clients {
		if c.Debt.GreaterThan(limit) {
			total = total.Add(c.Debt)
			count++
		}
	}
	if count == 0 {
		return nil
	}
	return []alerts.Alert{alerts.New(
		alerts.KindHighDebtExposure,
		alerts.SeverityHigh,
		"clients:debt",
		fmt.Sprintf("%d clients owe %s in total", count, total.StringFixed(2)),
	)}
}

func clientLabel(c ledger.Client) string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}
