package service

import (
	"errors"
	"fmt"
)

// Validation errors. Checkout and settlement fail fast on these before any
// write happens.
var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrMissingPaymentMethod = errors.New("payment method is required")
	ErrMissingCustomer      = errors.New("customer name is required")
	ErrMissingReference     = errors.New("mobile money transaction reference is required")
	ErrInvalidPartialAmount = errors.New("partial amount must be greater than zero and no more than the total")
	ErrInvalidPaymentAmount = errors.New("payment amount must be greater than zero and no more than the outstanding balance")
	ErrBalanceCleared       = errors.New("balance is already cleared")
)

// StepError marks a persistence failure inside a multi-write flow after at
// least one write already succeeded. There is no rollback and no retry: the
// error names the step that failed and, when a sale was already recorded,
// its id, so the operator can reconcile by hand.
type StepError struct {
	Step   string
	SaleID string
	Err    error
}

func (e *StepError) Error() string {
	if e.SaleID == "" {
		return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("step %s failed for sale %s: %v", e.Step, e.SaleID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
