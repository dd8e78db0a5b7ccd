package application

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	alerts "flowdistributor/internal/alerts/domain"
	statistic "flowdistributor/internal/analytics/domain/statistic"
	ledger "flowdistributor/internal/ledger/domain"
)

var evalNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func cohortOf(name string, amounts ...int64) Cohort {
	entries := make([]ledger.Entry, 0, len(amounts))
	for i, amount := range amounts {
		entries = append(entries, ledger.Entry{
			ID:        fmt.Sprintf("%s-%02d", name, i),
			Date:      evalNow.AddDate(0, 0, -i),
			Amount:    decimal.NewFromInt(amount),
			Direction: ledger.DirectionIncome,
		})
	}
	return Cohort{Name: name, Entries: entries}
}

func repeat(value int64, n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = value
	}
	return out
}

func kinds(list []alerts.Alert) []alerts.Kind {
	out := make([]alerts.Kind, 0, len(list))
	for _, a := range list {
		out = append(out, a.Kind)
	}
	return out
}

func TestNegativeBalanceProducesSingleCritical(t *testing.T) {
	e := NewEvaluator()
	got := e.Evaluate(Snapshot{
		Now: evalNow,
		Accounts: []AccountSnapshot{{
			AccountID:  "monte",
			Balance:    decimal.RequireFromString("-178714.88"),
			HasBalance: true,
		}},
	})
	require.Len(t, got, 1)
	assert.Equal(t, alerts.KindNegativeBalance, got[0].Kind)
	assert.Equal(t, alerts.SeverityCritical, got[0].Severity)
	assert.Contains(t, got[0].Message, "-178714.88")
	assert.Equal(t, alerts.BuildID(alerts.KindNegativeBalance, "account:monte"), got[0].ID)
}

func TestNegativeBalanceIgnoresMissingAndZeroSnapshot(t *testing.T) {
	e := NewEvaluator()
	got := e.Evaluate(Snapshot{
		Now: evalNow,
		Accounts: []AccountSnapshot{
			{AccountID: "usa", Balance: decimal.NewFromInt(-5)},
			{AccountID: "azteca", Balance: decimal.Zero, HasBalance: true},
		},
	})
	assert.Empty(t, got)
}

func TestTrendShiftStrictBounds(t *testing.T) {
	cases := []struct {
		name     string
		pct      float64
		severity alerts.Severity
	}{
		{name: "growth at bound", pct: 20},
		{name: "growth above bound", pct: 20.0001, severity: alerts.SeverityLow},
		{name: "decline at bound", pct: -10},
		{name: "decline below bound", pct: -10.5, severity: alerts.SeverityCritical},
		{name: "flat", pct: 0},
	}
	e := NewEvaluator()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := e.Evaluate(Snapshot{
				Now: evalNow,
				Accounts: []AccountSnapshot{{
					AccountID: "fletes",
					Trend:     statistic.Trend{PercentChange: tc.pct},
					HasTrend:  true,
				}},
			})
			if tc.severity == "" {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, alerts.KindTrendShift, got[0].Kind)
			assert.Equal(t, tc.severity, got[0].Severity)
		})
	}
}

func TestOutlierTiers(t *testing.T) {
	e := NewEvaluator()

	high := e.Evaluate(Snapshot{Now: evalNow, Accounts: []AccountSnapshot{{
		AccountID: "usa",
		Cohorts:   []Cohort{cohortOf("income", append(repeat(100, 20), 10000)...)},
	}}})
	require.Len(t, high, 1)
	assert.Equal(t, alerts.KindStatisticalOutlier, high[0].Kind)
	assert.Equal(t, alerts.SeverityHigh, high[0].Severity)
	assert.Equal(t, "entry:usa/income/income-20", high[0].SubjectRef)

	medium := e.Evaluate(Snapshot{Now: evalNow, Accounts: []AccountSnapshot{{
		AccountID: "usa",
		Cohorts:   []Cohort{cohortOf("income", append(repeat(100, 11), 1300)...)},
	}}})
	require.Len(t, medium, 1)
	assert.Equal(t, alerts.SeverityMedium, medium[0].Severity)
}

func TestOutlierSkipsZeroDeviation(t *testing.T) {
	e := NewEvaluator()
	got := e.Evaluate(Snapshot{Now: evalNow, Accounts: []AccountSnapshot{{
		AccountID: "utilidades",
		Cohorts: []Cohort{
			cohortOf("income", repeat(250, 30)...),
			cohortOf("expense", 7),
			cohortOf("empty"),
		},
	}}})
	assert.Empty(t, got)
}

func TestLowStockSingleAlert(t *testing.T) {
	e := NewEvaluator()
	got := e.Evaluate(Snapshot{Now: evalNow, Products: []ledger.Product{
		{ID: "p1", Name: "Cable", Stock: 3},
		{ID: "p2", Name: "Adapter", Stock: 9},
		{ID: "p3", Name: "Router", Stock: 10},
	}})
	require.Len(t, got, 1)
	assert.Equal(t, alerts.KindLowStockInfo, got[0].Kind)
	assert.Equal(t, alerts.SeverityHigh, got[0].Severity)
	assert.Contains(t, got[0].Message, "Adapter, Cable")
	assert.NotContains(t, got[0].Message, "Router")
}

func TestOverdueReceivables(t *testing.T) {
	e := NewEvaluator()
	got := e.Evaluate(Snapshot{Now: evalNow, Clients: []ledger.Client{
		{ID: "c1", Name: "Late", LastPaymentAt: evalNow.AddDate(0, 0, -31)},
		{ID: "c2", Name: "Boundary", LastPaymentAt: evalNow.AddDate(0, 0, -30)},
		{ID: "c3", Name: "Never"},
	}})
	require.Len(t, got, 1)
	assert.Equal(t, alerts.KindOverdueReceivable, got[0].Kind)
	assert.Equal(t, alerts.SeverityCritical, got[0].Severity)
	assert.Contains(t, got[0].Message, "Late")
	assert.NotContains(t, got[0].Message, "Boundary")
}

func TestPendingSalesTiers(t *testing.T) {
	e := NewEvaluator()
	cases := map[int]alerts.Severity{
		5:  "",
		6:  alerts.SeverityHigh,
		10: alerts.SeverityHigh,
		11: alerts.SeverityCritical,
	}
	for pending, want := range cases {
		got := e.Evaluate(Snapshot{Now: evalNow, PendingSales: pending})
		if want == "" {
			assert.Empty(t, got, "pending=%d", pending)
			continue
		}
		require.Len(t, got, 1, "pending=%d", pending)
		assert.Equal(t, want, got[0].Severity, "pending=%d", pending)
	}
}

func TestDebtExposureSumsClients(t *testing.T) {
	e := NewEvaluator()
	got := e.Evaluate(Snapshot{Now: evalNow, Clients: []ledger.Client{
		{ID: "c1", Debt: decimal.RequireFromString("1500.50")},
		{ID: "c2", Debt: decimal.RequireFromString("499.50")},
		{ID: "c3", Debt: decimal.Zero},
	}})
	require.Len(t, got, 1)
	assert.Equal(t, alerts.KindHighDebtExposure, got[0].Kind)
	assert.Equal(t, alerts.SeverityHigh, got[0].Severity)
	assert.Equal(t, "2 clients owe 2000.00 in total", got[0].Message)
}

func TestEvaluateSortsBySeverityAndUsesResolver(t *testing.T) {
	override := alerts.DefaultThresholds().Merge(alerts.Thresholds{TrendGrowth: 50})
	e := NewEvaluator(WithThresholdResolver(func(accountID string) alerts.Thresholds {
		if accountID == "profit" {
			return override
		}
		return alerts.DefaultThresholds()
	}))
	got := e.Evaluate(Snapshot{
		Now: evalNow,
		Accounts: []AccountSnapshot{
			{AccountID: "leftie", Trend: statistic.Trend{PercentChange: 30}, HasTrend: true},
			{AccountID: "profit", Trend: statistic.Trend{PercentChange: 30}, HasTrend: true},
			{AccountID: "monte", Balance: decimal.NewFromInt(-1), HasBalance: true},
		},
		Products: []ledger.Product{{ID: "p", Stock: 1}},
	})
	assert.Equal(t, []alerts.Kind{alerts.KindNegativeBalance, alerts.KindLowStockInfo, alerts.KindTrendShift}, kinds(got))
	assert.Equal(t, "account:leftie", got[2].SubjectRef)
}
