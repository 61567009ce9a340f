package services

import (
	"errors"
	"fmt"
)

// Validation
var (
	ErrUnknownProduct      = errors.New("unknown product")
	ErrUnknownCurrency     = errors.New("unknown currency")
	ErrCurrencyUnavailable = errors.New("currency has no configured wallet")
	ErrUnknownVolume       = errors.New("unknown volume")
	ErrNoProductSelected   = errors.New("no product selected")
	ErrEmptyProof          = errors.New("empty proof of payment")
)

// Not found
var (
	ErrNoOpenOrder   = errors.New("no open order")
	ErrOrderNotFound = errors.New("order not found")
)

// Authorization
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNoAccess     = errors.New("product not owned")
)

// Conflict
var (
	ErrOrderClosed          = errors.New("order is already closed")
	ErrAlreadyOwned         = errors.New("product already owned")
	ErrOrderAccountMismatch = errors.New("order belongs to another account")
)

// DeliveryError reports a file that could not be sent after access was
// granted. The grant itself stays committed.
type DeliveryError struct {
	Volume string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %q: %v", e.Volume, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
