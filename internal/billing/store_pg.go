package billing

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// PGStore persists the ledger in Postgres. Every operation locks the balance
// row with SELECT ... FOR UPDATE inside a transaction, so per-user mutations
// are serialized by the database.
type PGStore struct {
	DB *sql.DB
}

// NewPGStore constructs a Postgres-backed ledger store.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{DB: db}
}

func (s *PGStore) Ensure(ctx context.Context, userID string, initialAllowance float64) (Balance, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Balance{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	balance, err := s.lockAndEnsure(ctx, tx, userID, initialAllowance)
	if err != nil {
		return Balance{}, err
	}
	if err = tx.Commit(); err != nil {
		return Balance{}, err
	}
	return balance, nil
}

func (s *PGStore) Deduct(ctx context.Context, userID string, cost, initialAllowance float64, description, referenceID string) (ok bool, err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	balance, err := s.lockAndEnsure(ctx, tx, userID, initialAllowance)
	if err != nil {
		return false, err
	}
	if cost > balance.Balance {
		if err = tx.Commit(); err != nil {
			return false, err
		}
		return false, nil
	}

	after := balance.Balance - cost
	if err = s.writeBalance(ctx, tx, userID, after); err != nil {
		return false, err
	}
	if err = s.appendTransaction(ctx, tx, Transaction{
		ID:            uuid.NewString(),
		UserID:        userID,
		Amount:        -cost,
		BalanceBefore: balance.Balance,
		BalanceAfter:  after,
		Type:          TypeDebit,
		Description:   description,
		ReferenceID:   referenceID,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		return false, err
	}
	if err = tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PGStore) Credit(ctx context.Context, userID string, amount, initialAllowance float64, description, referenceID string) (err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	balance, err := s.lockAndEnsure(ctx, tx, userID, initialAllowance)
	if err != nil {
		return err
	}

	after := balance.Balance + amount
	if err = s.writeBalance(ctx, tx, userID, after); err != nil {
		return err
	}
	if err = s.appendTransaction(ctx, tx, Transaction{
		ID:            uuid.NewString(),
		UserID:        userID,
		Amount:        amount,
		BalanceBefore: balance.Balance,
		BalanceAfter:  after,
		Type:          TypeCredit,
		Description:   description,
		ReferenceID:   referenceID,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGStore) Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, amount, balance_before, balance_after, type, description, COALESCE(reference_id, ''), created_at
FROM balance_transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.BalanceBefore, &t.BalanceAfter, &t.Type, &t.Description, &t.ReferenceID, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PGStore) lockAndEnsure(ctx context.Context, tx *sql.Tx, userID string, initialAllowance float64) (Balance, error) {
	var balance Balance
	row := tx.QueryRowContext(ctx, `
SELECT user_id, balance, updated_at FROM balances WHERE user_id = $1 FOR UPDATE`, userID)
	err := row.Scan(&balance.UserID, &balance.Balance, &balance.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			now := time.Now().UTC()
			balance = Balance{UserID: userID, Balance: initialAllowance, UpdatedAt: now}
			if _, err := tx.ExecContext(ctx, `
INSERT INTO balances (user_id, balance, updated_at) VALUES ($1, $2, $3)`,
				userID, balance.Balance, now); err != nil {
				return Balance{}, err
			}
			return balance, nil
		}
		return Balance{}, err
	}
	return balance, nil
}

func (s *PGStore) writeBalance(ctx context.Context, tx *sql.Tx, userID string, balance float64) error {
	_, err := tx.ExecContext(ctx, `
UPDATE balances SET balance = $1, updated_at = $2 WHERE user_id = $3`,
		balance, time.Now().UTC(), userID)
	return err
}

func (s *PGStore) appendTransaction(ctx context.Context, tx *sql.Tx, t Transaction) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO balance_transactions (id, user_id, amount, balance_before, balance_after, type, description, reference_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.UserID, t.Amount, t.BalanceBefore, t.BalanceAfter, t.Type, t.Description, nullableString(t.ReferenceID), t.CreatedAt)
	return err
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Store = (*PGStore)(nil)
