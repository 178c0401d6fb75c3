package status

import "errors"

var (
	ErrInvalidQuantity  = errors.New("purchase: quantity must be positive")
	ErrInvalidPayment   = errors.New("payment: invalid payment details")
	ErrFailedPayment    = errors.New("payment: payment declined")
	ErrSoldOut          = errors.New("inventory: not enough seats available")
	ErrCategoryNotFound = errors.New("inventory: ticket category not found")
	ErrEventNotFound    = errors.New("catalog: event not found")
	ErrNotFound         = errors.New("catalog: record not found")
	ErrNotAdmitted      = errors.New("queue: no active admission lease")
	ErrNotQueued        = errors.New("queue: user is not in the queue")
	ErrStorage          = errors.New("storage: operation failed")
)

// FieldError reports a single malformed input field.
type FieldError struct {
	Err    error
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return e.Err.Error() + ": " + e.Field + " " + e.Reason
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
