package history

import (
	"context"
	"fmt"

	"github.com/Domenick1991/bookingflow/internal/clock"
	"github.com/Domenick1991/bookingflow/internal/domain"
	"github.com/Domenick1991/bookingflow/internal/repository"
)

type HistoryUseCase interface {
	Append(ctx context.Context, rec *domain.StatusHistoryRecord) error
	List(ctx context.Context, bookingID int64) ([]domain.StatusHistoryRecord, error)
	CurrentStatus(ctx context.Context, bookingID int64) (domain.BookingStatus, error)
}

// Ledger is the append-only audit trail of booking transitions. Append is
// meant to run inside the transaction that changes the booking status.
type Ledger struct {
	repo  repository.HistoryRepository
	clock clock.Clock
}

func NewLedger(repo repository.HistoryRepository, c clock.Clock) *Ledger {
	if c == nil {
		c = clock.Real{}
	}
	return &Ledger{repo: repo, clock: c}
}

func (l *Ledger) Append(ctx context.Context, rec *domain.StatusHistoryRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: nil history record", domain.ErrValidation)
	}
	if !rec.Actor.Valid() {
		return fmt.Errorf("%w: invalid actor %q", domain.ErrValidation, rec.Actor)
	}
	if !domain.CanTransition(rec.OldStatus, rec.NewStatus) {
		return &domain.TransitionError{BookingID: rec.BookingID, From: rec.OldStatus, To: rec.NewStatus}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = l.clock.Now()
	}
	if err := l.repo.Append(ctx, rec); err != nil {
		return fmt.Errorf("append history for booking %d: %w", rec.BookingID, err)
	}
	return nil
}

// List returns the trail oldest first.
func (l *Ledger) List(ctx context.Context, bookingID int64) ([]domain.StatusHistoryRecord, error) {
	return l.repo.ListByBooking(ctx, bookingID)
}

// CurrentStatus is the NewStatus of the latest record. A booking without
// history yields ErrNotFound.
func (l *Ledger) CurrentStatus(ctx context.Context, bookingID int64) (domain.BookingStatus, error) {
	records, err := l.repo.ListByBooking(ctx, bookingID)
	if err != nil {
		return domain.StatusNone, err
	}
	if len(records) == 0 {
		return domain.StatusNone, fmt.Errorf("history of booking %d: %w", bookingID, domain.ErrNotFound)
	}
	return records[len(records)-1].NewStatus, nil
}

var _ HistoryUseCase = (*Ledger)(nil)
