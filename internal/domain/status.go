package domain

import "fmt"

type BookingStatus string

// StatusNone is the origin of the very first transition of a booking.
const StatusNone BookingStatus = ""

const (
	StatusInitiated     BookingStatus = "initiated"
	StatusReserved      BookingStatus = "reserved"
	StatusPaid          BookingStatus = "paid"
	StatusTicketed      BookingStatus = "ticketed"
	StatusCheckedIn     BookingStatus = "checked_in"
	StatusBoarded       BookingStatus = "boarded"
	StatusFlown         BookingStatus = "flown"
	StatusNoShow        BookingStatus = "no_show"
	StatusCancelled     BookingStatus = "cancelled"
	StatusRefunded      BookingStatus = "refunded"
	StatusExpired       BookingStatus = "expired"
	StatusPaymentFailed BookingStatus = "payment_failed"
)

// AllStatuses lists every valid booking status.
func AllStatuses() []BookingStatus {
	return []BookingStatus{
		StatusInitiated,
		StatusReserved,
		StatusPaid,
		StatusTicketed,
		StatusCheckedIn,
		StatusBoarded,
		StatusFlown,
		StatusNoShow,
		StatusCancelled,
		StatusRefunded,
		StatusExpired,
		StatusPaymentFailed,
	}
}

// CanTransition reports whether a booking may move from one status to another.
// Self-transitions and transitions out of terminal states are never allowed.
func CanTransition(from, to BookingStatus) bool {
	switch from {
	case StatusNone:
		return to == StatusInitiated
	case StatusInitiated:
		return to == StatusReserved || to == StatusExpired || to == StatusCancelled
	case StatusReserved:
		return to == StatusPaid || to == StatusExpired || to == StatusCancelled
	case StatusPaid:
		return to == StatusTicketed || to == StatusPaymentFailed || to == StatusCancelled
	case StatusTicketed:
		return to == StatusCheckedIn || to == StatusCancelled || to == StatusNoShow
	case StatusCheckedIn:
		return to == StatusBoarded || to == StatusNoShow
	case StatusBoarded:
		return to == StatusFlown
	case StatusExpired:
		return to == StatusReserved
	case StatusPaymentFailed:
		return to == StatusReserved || to == StatusCancelled
	case StatusCancelled:
		return to == StatusRefunded
	default:
		return false
	}
}

func (s BookingStatus) Valid() bool {
	for _, st := range AllStatuses() {
		if s == st {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are possible from this status.
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case StatusFlown, StatusRefunded, StatusNoShow:
		return true
	}
	return false
}

// HoldsInventoryLock is true for statuses in which the booking owns an
// unconverted seat hold.
func (s BookingStatus) HoldsInventoryLock() bool {
	return s == StatusInitiated || s == StatusReserved
}

// HasConfirmedSeats is true once payment converted the hold and until the
// seats are returned or the booking reaches the end of its life.
func (s BookingStatus) HasConfirmedSeats() bool {
	switch s {
	case StatusPaid, StatusTicketed, StatusCheckedIn, StatusBoarded:
		return true
	}
	return false
}

func (s BookingStatus) String() string {
	if s == StatusNone {
		return "none"
	}
	return string(s)
}

func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("%w: invalid booking status %q", ErrValidation, s)
	}
	return status, nil
}
