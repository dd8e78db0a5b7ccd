package statistic

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	ledger "flowdistributor/internal/ledger/domain"
)

// Predicate decides which entries take part in a reduction.
type Predicate func(ledger.Entry) bool

// All includes every entry.
func All(ledger.Entry) bool { return true }

// CompletedOnly includes settled entries; an absent status counts as completed.
func CompletedOnly(e ledger.Entry) bool { return e.EffectiveStatus() == ledger.StatusCompleted }

// NotCancelled includes completed and pending entries.
func NotCancelled(e ledger.Entry) bool { return e.EffectiveStatus() != ledger.StatusCancelled }

// PendingOnly includes entries still awaiting settlement.
func PendingOnly(e ledger.Entry) bool { return e.EffectiveStatus() == ledger.StatusPending }

// Balance is the reduction of a set of entries.
type Balance struct {
	TotalIncome  decimal.Decimal `json:"total_income"`
	TotalExpense decimal.Decimal `json:"total_expense"`
	NetBalance   decimal.Decimal `json:"net_balance"`
	Count        int             `json:"count"`
}

// Add folds one entry into the balance.
func (b Balance) Add(e ledger.Entry) Balance {
	switch e.Direction {
	case ledger.DirectionIncome:
		b.TotalIncome = b.TotalIncome.Add(e.Amount)
	case ledger.DirectionExpense:
		b.TotalExpense = b.TotalExpense.Add(e.Amount)
	default:
		return b
	}
	b.NetBalance = b.TotalIncome.Sub(b.TotalExpense)
	b.Count++
	return b
}

// Merge combines two balances.
func (b Balance) Merge(other Balance) Balance {
	b.TotalIncome = b.TotalIncome.Add(other.TotalIncome)
	b.TotalExpense = b.TotalExpense.Add(other.TotalExpense)
	b.NetBalance = b.TotalIncome.Sub(b.TotalExpense)
	b.Count += other.Count
	return b
}

// Reduce sums entries in a single pass. Decimal arithmetic keeps the result
// independent of entry order.
func Reduce(entries []ledger.Entry, include Predicate) Balance {
	if include == nil {
		include = All
	}
	var b Balance
	for _, e := range entries {
		if !include(e) {
			continue
		}
		b = b.Add(e)
	}
	return b
}

// PeriodBalance is the balance of one period bucket.
type PeriodBalance struct {
	Key         TimeKey   `json:"key"`
	PeriodStart time.Time `json:"period_start"`
	Balance     Balance   `json:"balance"`
}

// ReduceByPeriod reduces entries per period, ordered by period start.
func ReduceByPeriod(entries []ledger.Entry, granularity Granularity, loc *time.Location, include Predicate) ([]PeriodBalance, error) {
	if !granularity.IsValid() {
		return nil, ErrInvalidGranularity
	}
	if loc == nil {
		return nil, ErrNilLocation
	}
	if include == nil {
		include = All
	}
	byKey := make(map[TimeKey]*PeriodBalance)
	for _, e := range entries {
		if e.Date.IsZero() || !include(e) {
			continue
		}
		key, err := NewTimeKey(granularity, e.Date, loc)
		if err != nil {
			return nil, err
		}
		bucket, ok := byKey[key]
		if !ok {
			start, err := PeriodStart(granularity, e.Date, loc)
			if err != nil {
				return nil, err
			}
			bucket = &PeriodBalance{Key: key, PeriodStart: start}
			byKey[key] = bucket
		}
		bucket.Balance = bucket.Balance.Add(e)
	}
	result := make([]PeriodBalance, 0, len(byKey))
	for _, bucket := range byKey {
		result = append(result, *bucket)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PeriodStart.Before(result[j].PeriodStart) })
	return result, nil
}

// BalanceFor returns the balance of the period starting at start, zero when absent.
func BalanceFor(periods []PeriodBalance, start time.Time) Balance {
	for _, p := range periods {
		if p.PeriodStart.Equal(start) {
			return p.Balance
		}
	}
	return Balance{}
}
