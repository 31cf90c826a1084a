package billing

import "errors"

var (
	// ErrInsufficientBalance is raised by pre-flight checks before a pipeline
	// run starts.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidAmount indicates a non-positive credit or negative debit amount.
	ErrInvalidAmount = errors.New("invalid amount")
)
