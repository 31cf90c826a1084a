package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps the ledger in memory for dev mode and tests. A single
// mutex serializes all mutations, so concurrent debits for one user cannot
// both read the same starting balance.
type MemoryStore struct {
	mu           sync.Mutex
	balances     map[string]Balance
	transactions map[string][]Transaction
}

// NewMemoryStore constructs an empty in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances:     make(map[string]Balance),
		transactions: make(map[string][]Transaction),
	}
}

func (s *MemoryStore) Ensure(ctx context.Context, userID string, initialAllowance float64) (Balance, error) {
	if err := ctx.Err(); err != nil {
		return Balance{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(userID, initialAllowance), nil
}

func (s *MemoryStore) Deduct(ctx context.Context, userID string, cost, initialAllowance float64, description, referenceID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	balance := s.ensureLocked(userID, initialAllowance)
	if cost > balance.Balance {
		return false, nil
	}

	after := balance.Balance - cost
	s.writeLocked(userID, after)
	s.appendLocked(Transaction{
		ID:            uuid.NewString(),
		UserID:        userID,
		Amount:        -cost,
		BalanceBefore: balance.Balance,
		BalanceAfter:  after,
		Type:          TypeDebit,
		Description:   description,
		ReferenceID:   referenceID,
		CreatedAt:     time.Now().UTC(),
	})
	return true, nil
}

func (s *MemoryStore) Credit(ctx context.Context, userID string, amount, initialAllowance float64, description, referenceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	balance := s.ensureLocked(userID, initialAllowance)
	after := balance.Balance + amount
	s.writeLocked(userID, after)
	s.appendLocked(Transaction{
		ID:            uuid.NewString(),
		UserID:        userID,
		Amount:        amount,
		BalanceBefore: balance.Balance,
		BalanceAfter:  after,
		Type:          TypeCredit,
		Description:   description,
		ReferenceID:   referenceID,
		CreatedAt:     time.Now().UTC(),
	})
	return nil
}

func (s *MemoryStore) Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.transactions[userID]
	out := make([]Transaction, 0, len(entries))
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

func (s *MemoryStore) ensureLocked(userID string, initialAllowance float64) Balance {
	if balance, ok := s.balances[userID]; ok {
		return balance
	}
	balance := Balance{UserID: userID, Balance: initialAllowance, UpdatedAt: time.Now().UTC()}
	s.balances[userID] = balance
	return balance
}

func (s *MemoryStore) writeLocked(userID string, amount float64) {
	balance := s.balances[userID]
	balance.Balance = amount
	balance.UpdatedAt = time.Now().UTC()
	s.balances[userID] = balance
}

func (s *MemoryStore) appendLocked(t Transaction) {
	s.transactions[t.UserID] = append(s.transactions[t.UserID], t)
}

var _ Store = (*MemoryStore)(nil)
