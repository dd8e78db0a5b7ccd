package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Client is a customer with an outstanding receivable.
type Client struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Debt          decimal.Decimal `json:"debt"`
	LastPaymentAt time.Time       `json:"last_payment_at,omitempty"`
}

// DaysSinceLastPayment returns whole days elapsed since the last payment.
// A client that never paid reports ok=false.
func (c Client) DaysSinceLastPayment(now time.Time) (int, bool) {
	if c.LastPaymentAt.IsZero() {
		return 0, false
	}
	return int(now.Sub(c.LastPaymentAt).Hours() / 24), true
}

// Product is a warehouse stock item.
type Product struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Stock int64  `json:"stock"`
}

// Distributor supplies purchase orders.
type Distributor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
