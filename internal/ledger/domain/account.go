package ledger

import "github.com/shopspring/decimal"

// Account is a named cash vault. CurrentBalanceSnapshot is the manually
// maintained "real funds" figure and is only ever compared against sums.
type Account struct {
	ID                     string          `json:"id"`
	DisplayName            string          `json:"display_name"`
	CurrentBalanceSnapshot decimal.Decimal `json:"current_balance_snapshot"`
	HasSnapshot            bool            `json:"has_snapshot"`
	Entries                []Entry         `json:"-"`
}

// IncomeCollection is the document collection holding income records for an account.
func IncomeCollection(accountID string) string {
	return accountID + "_income"
}

// ExpenseCollection is the document collection holding expense records for an account.
func ExpenseCollection(accountID string) string {
	return accountID + "_expense"
}

const (
	CollectionAccounts       = "accounts"
	CollectionClients        = "clients"
	CollectionSales          = "sales"
	CollectionPurchaseOrders = "purchase_orders"
	CollectionProducts       = "products"
	CollectionDistributors   = "distributors"
	CollectionTransfers      = "gya"
)
