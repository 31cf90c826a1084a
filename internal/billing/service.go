package billing

import (
	"context"
	"fmt"

	"proposal-backend/internal/shared/telemetry"
)

// DefaultInitialAllowance is granted to every user on first balance access.
const DefaultInitialAllowance = 10.00

// Service is the balance ledger: spendable balance per user plus an
// append-only transaction log.
type Service struct {
	Store            Store
	InitialAllowance float64
}

// NewService constructs a Service. An allowance of 0 means the documented
// default.
func NewService(store Store, initialAllowance float64) *Service {
	if initialAllowance <= 0 {
		initialAllowance = DefaultInitialAllowance
	}
	return &Service{Store: store, InitialAllowance: initialAllowance}
}

// GetBalance returns the user's balance, granting the initial allowance on
// first access. Idempotent thereafter.
func (s *Service) GetBalance(ctx context.Context, userID string) (Balance, error) {
	if userID == "" {
		return Balance{}, fmt.Errorf("userID is required")
	}
	return s.Store.Ensure(ctx, userID, s.InitialAllowance)
}

// HasSufficientBalance reports whether the user can afford estimatedCost.
func (s *Service) HasSufficientBalance(ctx context.Context, userID string, estimatedCost float64) (bool, error) {
	balance, err := s.GetBalance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance.Balance >= estimatedCost, nil
}

// DeductCost atomically debits the user. It returns false without mutation
// when cost exceeds the current balance.
func (s *Service) DeductCost(ctx context.Context, userID string, cost float64, referenceID string) (bool, error) {
	if userID == "" {
		return false, fmt.Errorf("userID is required")
	}
	if cost < 0 {
		return false, ErrInvalidAmount
	}
	if cost == 0 {
		return true, nil
	}

	ok, err := s.Store.Deduct(ctx, userID, cost, s.InitialAllowance, "analysis cost", referenceID)
	if err != nil {
		return false, err
	}
	if !ok {
		telemetry.Warn("billing.deduct_insufficient", map[string]any{
			"user_id":      userID,
			"cost":         cost,
			"reference_id": referenceID,
		})
	}
	return ok, nil
}

// AddCredit atomically credits the user and appends a credit transaction.
func (s *Service) AddCredit(ctx context.Context, userID string, amount float64, description, referenceID string) error {
	if userID == "" {
		return fmt.Errorf("userID is required")
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if description == "" {
		description = "credit"
	}
	return s.Store.Credit(ctx, userID, amount, s.InitialAllowance, description, referenceID)
}

// Transactions lists the user's ledger entries, newest first.
func (s *Service) Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID is required")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.Store.Transactions(ctx, userID, limit)
}
