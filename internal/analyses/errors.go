package analyses

import "errors"

var ErrNotFound = errors.New("not found")

const (
	ErrorCodeValidation          = "VALIDATION_ERROR"
	ErrorCodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	ErrorCodeProvider            = "PROVIDER_ERROR"
	ErrorCodeProviderExhausted   = "PROVIDER_EXHAUSTED"
	ErrorCodeLedger              = "LEDGER_ERROR"
	ErrorCodeInternal            = "INTERNAL_ERROR"
)
