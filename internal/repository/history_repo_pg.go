package repository

import (
	"context"
	"fmt"

	"github.com/Domenick1991/bookingflow/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGHistoryRepository struct {
	db *pgxpool.Pool
}

func NewHistoryRepository(db *pgxpool.Pool) HistoryRepository {
	return &PGHistoryRepository{db: db}
}

func (r *PGHistoryRepository) Append(ctx context.Context, rec *domain.StatusHistoryRecord) error {
	var oldStatus *string
	if rec.OldStatus != domain.StatusNone {
		s := string(rec.OldStatus)
		oldStatus = &s
	}
	var actorID *int64
	if id, ok := rec.Actor.ID(); ok {
		actorID = &id
	}

	err := conn(ctx, r.db).QueryRow(ctx, `INSERT INTO booking_status_history
		(booking_id, old_status, new_status, reason, actor_type, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		rec.BookingID, oldStatus, rec.NewStatus, rec.Reason, rec.Actor.Type(), actorID, rec.CreatedAt).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to append history for booking %d: %w", rec.BookingID, err)
	}
	return nil
}

// ListByBooking returns the trail oldest first. The serial id breaks ties
// between records written in the same instant.
func (r *PGHistoryRepository) ListByBooking(ctx context.Context, bookingID int64) ([]domain.StatusHistoryRecord, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `SELECT id, booking_id, old_status, new_status, reason, actor_type, actor_id, created_at
		FROM booking_status_history WHERE booking_id=$1 ORDER BY created_at, id`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	records := make([]domain.StatusHistoryRecord, 0)
	for rows.Next() {
		var (
			rec       domain.StatusHistoryRecord
			oldStatus *string
			actorType string
			actorID   *int64
		)
		if err := rows.Scan(&rec.ID, &rec.BookingID, &oldStatus, &rec.NewStatus, &rec.Reason, &actorType, &actorID, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		if oldStatus != nil {
			rec.OldStatus = domain.BookingStatus(*oldStatus)
		}
		actor, err := domain.ParseActor(actorType, actorID)
		if err != nil {
			return nil, fmt.Errorf("history record %d: %w", rec.ID, err)
		}
		rec.Actor = actor
		records = append(records, rec)
	}
	return records, rows.Err()
}

var _ HistoryRepository = (*PGHistoryRepository)(nil)
