package kafka

import "time"

const (
	EventStatusChanged  = "booking.status_changed"
	EventRefundEligible = "booking.refund_eligible"
)

// BookingEvent is published after every committed transition.
type BookingEvent struct {
	Type           string    `json:"type"`
	BookingID      int64     `json:"booking_id"`
	Reference      string    `json:"reference"`
	PNR            string    `json:"pnr"`
	FlightID       int64     `json:"flight_id"`
	CabinClass     string    `json:"cabin_class"`
	Seats          int       `json:"seats"`
	TotalAmount    int64     `json:"total_amount"`
	Currency       string    `json:"currency"`
	FromStatus     string    `json:"from_status,omitempty"`
	ToStatus       string    `json:"to_status"`
	Reason         string    `json:"reason,omitempty"`
	ActorType      string    `json:"actor_type"`
	ActorID        *int64    `json:"actor_id,omitempty"`
	RefundEligible bool      `json:"refund_eligible"`
	OccurredAt     time.Time `json:"occurred_at"`
}

const (
	PaymentSucceeded = "succeeded"
	PaymentFailed    = "failed"
)

// PaymentResult is delivered by the payment gateway integration.
type PaymentResult struct {
	BookingID        int64  `json:"booking_id"`
	PaymentReference string `json:"payment_reference"`
	Status           string `json:"status"`
	Reason           string `json:"reason,omitempty"`
}
