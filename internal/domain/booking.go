package domain

import (
	"fmt"
	"time"
)

type CabinClass string

const (
	CabinEconomy        CabinClass = "economy"
	CabinPremiumEconomy CabinClass = "premium_economy"
	CabinBusiness       CabinClass = "business"
	CabinFirst          CabinClass = "first"
)

func (c CabinClass) Valid() bool {
	switch c {
	case CabinEconomy, CabinPremiumEconomy, CabinBusiness, CabinFirst:
		return true
	}
	return false
}

func ParseCabinClass(s string) (CabinClass, error) {
	c := CabinClass(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown cabin class %q", ErrValidation, s)
	}
	return c, nil
}

// Booking is the authoritative record of a reservation. Status is only ever
// changed by the booking state machine.
type Booking struct {
	ID                 int64
	Reference          string
	PNR                string
	FlightID           int64
	CabinClass         CabinClass
	Seats              int
	NumberOfPassengers int
	TotalAmount        int64
	Currency           string
	UserID             *int64
	SessionID          string
	Status             BookingStatus
	PaymentReference   *string
	LockID             *string
	ExpiresAt          *time.Time
	RefundEligible     bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Clone returns a deep copy so callers never share pointer fields with a store.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	if b.UserID != nil {
		v := *b.UserID
		c.UserID = &v
	}
	if b.PaymentReference != nil {
		v := *b.PaymentReference
		c.PaymentReference = &v
	}
	if b.LockID != nil {
		v := *b.LockID
		c.LockID = &v
	}
	if b.ExpiresAt != nil {
		v := *b.ExpiresAt
		c.ExpiresAt = &v
	}
	return &c
}
