package application

import (
	"time"

	"github.com/shopspring/decimal"

	alerts "flowdistributor/internal/alerts/domain"
	statistic "flowdistributor/internal/analytics/domain/statistic"
	ledger "flowdistributor/internal/ledger/domain"
	"flowdistributor/internal/ledger/normalize"
)

// AccountRef names an account the dashboard aggregates.
type AccountRef struct {
	ID          string
	DisplayName string
}

// AccountView is the aggregated state of one account.
type AccountView struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"display_name"`
	Completed   statistic.Balance `json:"completed"`
	Pending     statistic.Balance `json:"pending"`
	// Snapshot is the stored rfActual value; Delta is Snapshot minus the
	// completed net balance. Neither is ever written back.
	Snapshot    decimal.Decimal           `json:"snapshot"`
	HasSnapshot bool                      `json:"has_snapshot"`
	Delta       decimal.Decimal           `json:"reconciliation_delta"`
	Monthly     []statistic.PeriodBalance `json:"monthly"`
	Trend       statistic.Trend           `json:"trend"`
	Entries     []ledger.Entry            `json:"-"`
}

// SalesSummary aggregates the sales collection.
type SalesSummary struct {
	Completed    statistic.Balance `json:"completed"`
	Pending      statistic.Balance `json:"pending"`
	PendingCount int               `json:"pending_count"`
}

// MasterSummary counts master data.
type MasterSummary struct {
	Clients      int             `json:"clients"`
	TotalDebt    decimal.Decimal `json:"total_debt"`
	Products     int             `json:"products"`
	TotalStock   int64           `json:"total_stock"`
	Distributors int             `json:"distributors"`
}

// Overview is the full dashboard payload of one aggregation pass.
type Overview struct {
	GeneratedAt  time.Time                `json:"generated_at"`
	CacheState   string                   `json:"cache_state"`
	Version      uint64                   `json:"version"`
	Totals       statistic.Balance        `json:"totals"`
	Accounts     []AccountView            `json:"accounts"`
	Transfers    statistic.Balance        `json:"transfers"`
	Sales        SalesSummary             `json:"sales"`
	Purchases    statistic.Balance        `json:"purchases"`
	Master       MasterSummary            `json:"master"`
	Distributors []ledger.Distributor     `json:"distributors"`
	Monthly      []statistic.PeriodBucket `json:"monthly"`
	Heatmap      statistic.Heatmap        `json:"heatmap"`
	Alerts       []alerts.Alert           `json:"alerts"`
	Rejected     []normalize.Rejection    `json:"rejected"`
	Skipped      int                      `json:"skipped"`
}

// FindAccount returns the view of an account.
func (o Overview) FindAccount(id string) (AccountView, bool) {
	for _, account := range o.Accounts {
		if account.ID == id {
			return account, true
		}
	}
	return AccountView{}, false
}
