package order

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("order: not found")
	ErrUnauthorized   = errors.New("order: actor not authorized")
	ErrStateViolation = errors.New("order: illegal state transition")
	ErrNotAvailable   = errors.New("order: item not available")
	ErrPriceChanged   = errors.New("order: item price changed")
	ErrTotalMismatch  = errors.New("order: total mismatch")
	ErrInvalidInput   = errors.New("order: invalid input")
	ErrConflict       = errors.New("order: conflict")
)

// The following match their parent sentinel under errors.Is.
var (
	ErrSellerNotFound  = fmt.Errorf("%w: seller", ErrNotFound)
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be greater than zero", ErrInvalidInput)
	ErrNoLines         = fmt.Errorf("%w: at least one line is required", ErrInvalidInput)
)

// TransitionError carries the rejected edge and matches ErrStateViolation.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order: illegal state transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrStateViolation
}
