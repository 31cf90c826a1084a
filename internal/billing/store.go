package billing

import "context"

// Store defines ledger persistence. Deduct and Credit must be atomic: the
// balance write and the transaction append land together or not at all, and
// concurrent operations on one user are serialized by the store (row lock in
// Postgres, mutex in memory). That closes the classic read-then-write race
// where two simultaneous runs both spend the same funds.
type Store interface {
	// Ensure returns the user's balance, creating it with the initial
	// allowance on first access. The allowance is granted exactly once.
	Ensure(ctx context.Context, userID string, initialAllowance float64) (Balance, error)

	// Deduct subtracts cost and appends a debit transaction. It returns false
	// without mutation when cost exceeds the current balance.
	Deduct(ctx context.Context, userID string, cost, initialAllowance float64, description, referenceID string) (bool, error)

	// Credit adds amount and appends a credit transaction.
	Credit(ctx context.Context, userID string, amount, initialAllowance float64, description, referenceID string) error

	// Transactions lists a user's ledger entries, newest first.
	Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error)
}
