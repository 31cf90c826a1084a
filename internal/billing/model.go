package billing

import "time"

// Transaction types.
const (
	TypeCredit = "credit"
	TypeDebit  = "debit"
)

// Balance is a user's spendable credit.
type Balance struct {
	UserID    string    `json:"userId"`
	Balance   float64   `json:"balance"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Transaction is one append-only ledger entry. For any user the invariant
// holds: balance == initial allowance + sum of Amount over all transactions.
type Transaction struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Amount        float64   `json:"amount"`
	BalanceBefore float64   `json:"balanceBefore"`
	BalanceAfter  float64   `json:"balanceAfter"`
	Type          string    `json:"type"`
	Description   string    `json:"description"`
	ReferenceID   string    `json:"referenceId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}
