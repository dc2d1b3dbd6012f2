package ledger

import "time"

type TransactionType string

const (
	TypeLoanAdd   TransactionType = "loan_add"
	TypeLoanClear TransactionType = "loan_clear"
)

// Transaction is an immutable ledger entry. Timestamp is assigned by the
// database when the entry is written.
type Transaction struct {
	ID        string          `json:"id"`
	Type      TransactionType `json:"type"`
	Vendor    string          `json:"vendor"`
	Amount    Amount          `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}
