package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction decides the sign of an entry when reduced into a balance.
type Direction string

const (
	DirectionIncome  Direction = "income"
	DirectionExpense Direction = "expense"
)

// Valid reports whether the direction is supported.
func (d Direction) Valid() bool {
	return d == DirectionIncome || d == DirectionExpense
}

// Opposite returns the reverse direction.
func (d Direction) Opposite() Direction {
	if d == DirectionIncome {
		return DirectionExpense
	}
	return DirectionIncome
}

// Status is the settlement state of an entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Entry is a single dated financial movement.
// Entries are read-only for the aggregation layer.
type Entry struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Direction   Direction       `json:"direction"`
	Counterpart string          `json:"counterpart,omitempty"`
	Note        string          `json:"note,omitempty"`
	Status      Status          `json:"status,omitempty"`
}

// EffectiveStatus treats an absent status as completed.
func (e Entry) EffectiveStatus() Status {
	if e.Status == "" {
		return StatusCompleted
	}
	return e.Status
}

// Signed returns the amount with the sign implied by the direction.
func (e Entry) Signed() decimal.Decimal {
	if e.Direction == DirectionExpense {
		return e.Amount.Neg()
	}
	return e.Amount
}
