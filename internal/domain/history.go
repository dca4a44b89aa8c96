package domain

import (
	"fmt"
	"time"
)

// StatusHistoryRecord is one accepted transition. Records are never updated.
type StatusHistoryRecord struct {
	ID        int64
	BookingID int64
	OldStatus BookingStatus
	NewStatus BookingStatus
	Reason    string
	Actor     Actor
	CreatedAt time.Time
}

// ValidateTrail checks that records, ordered oldest first, form a valid walk
// of the transition table starting from no status.
func ValidateTrail(records []StatusHistoryRecord) error {
	prev := StatusNone
	for i, rec := range records {
		if rec.OldStatus != prev {
			return fmt.Errorf("record %d: old status %s does not follow %s", i, rec.OldStatus, prev)
		}
		if !CanTransition(rec.OldStatus, rec.NewStatus) {
			return fmt.Errorf("record %d: %w", i, &TransitionError{BookingID: rec.BookingID, From: rec.OldStatus, To: rec.NewStatus})
		}
		prev = rec.NewStatus
	}
	return nil
}
