package escrow

import "errors"

// Every operation fails with exactly one of these. Failures are
// deterministic for a given state, input, and clock reading, and leave
// state untouched.
var (
	ErrAlreadyRegistered       = errors.New("already registered")
	ErrMerchantNotRegistered   = errors.New("merchant not registered")
	ErrAmountZero              = errors.New("amount must be > 0")
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrWrongState              = errors.New("operation not valid for payment status")
	ErrUnauthorized            = errors.New("caller not authorized")
	ErrHoldingPeriodNotElapsed = errors.New("holding period not passed")
	ErrDisputePeriodExpired    = errors.New("dispute period expired")
	ErrInsufficientFunds       = errors.New("insufficient withdrawable balance")
	ErrMerchantMismatch        = errors.New("merchant does not match payment")
)
