package domain

import "time"

// InventoryBucket is the seat pool of one cabin on one flight.
// HeldSeats counts seats of every unreleased lock, including locks that are
// past their deadline but not yet swept.
type InventoryBucket struct {
	FlightID       int64
	CabinClass     CabinClass
	Capacity       int
	HeldSeats      int
	ConfirmedSeats int
	UpdatedAt      time.Time
}

type LockState string

const (
	LockHeld      LockState = "held"
	LockConfirmed LockState = "confirmed"
	LockReleased  LockState = "released"
	LockReturned  LockState = "returned"
)

// InventoryLock is a time-bounded claim on seats of a bucket.
type InventoryLock struct {
	ID         string
	FlightID   int64
	CabinClass CabinClass
	Seats      int
	BookingID  int64
	SessionID  string
	State      LockState
	ExpiresAt  time.Time
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// Released is true once the hold no longer counts against held seats.
func (l InventoryLock) Released() bool {
	return l.State != LockHeld
}

func (l InventoryLock) ExpiredAt(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// Availability is a point-in-time view of a bucket with lazy expiry applied.
type Availability struct {
	FlightID       int64      `json:"flight_id"`
	CabinClass     CabinClass `json:"cabin_class"`
	Capacity       int        `json:"capacity"`
	HeldSeats      int        `json:"held_seats"`
	ConfirmedSeats int        `json:"confirmed_seats"`
	Available      int        `json:"available"`
}
