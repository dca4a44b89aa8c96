package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrCapacityExceeded   = errors.New("capacity exceeded")
	ErrLockExpired        = errors.New("lock expired")
	ErrValidation         = errors.New("validation failed")
	ErrDuplicateReference = errors.New("duplicate booking reference")
)

// TransitionError carries the rejected edge for operator-facing messages.
type TransitionError struct {
	BookingID int64
	From      BookingStatus
	To        BookingStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("booking %d: cannot transition from %s to %s", e.BookingID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

type CapacityError struct {
	FlightID   int64
	CabinClass CabinClass
	Requested  int
	Available  int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("flight %d %s: requested %d seats, %d available", e.FlightID, e.CabinClass, e.Requested, e.Available)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }
