package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/bookingflow/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const lockColumns = `id, flight_id, cabin_class, seats, booking_id, session_id, state, expires_at, created_at, resolved_at`

type PGInventoryRepository struct {
	db *pgxpool.Pool
}

func NewInventoryRepository(db *pgxpool.Pool) InventoryRepository {
	return &PGInventoryRepository{db: db}
}

func (r *PGInventoryRepository) UpsertBucket(ctx context.Context, b domain.InventoryBucket) error {
	_, err := conn(ctx, r.db).Exec(ctx, `INSERT INTO inventory_buckets (flight_id, cabin_class, capacity, held_seats, confirmed_seats, updated_at)
		VALUES ($1, $2, $3, 0, 0, $4)
		ON CONFLICT (flight_id, cabin_class) DO UPDATE SET capacity = EXCLUDED.capacity, updated_at = EXCLUDED.updated_at`,
		b.FlightID, b.CabinClass, b.Capacity, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert bucket %d/%s: %w", b.FlightID, b.CabinClass, err)
	}
	return nil
}

func (r *PGInventoryRepository) GetBucket(ctx context.Context, flightID int64, cabin domain.CabinClass) (*domain.InventoryBucket, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `SELECT flight_id, cabin_class, capacity, held_seats, confirmed_seats, updated_at
		FROM inventory_buckets WHERE flight_id=$1 AND cabin_class=$2`, flightID, cabin)
	return scanBucket(row, flightID, cabin)
}

// GetBucketForUpdate row-locks the bucket; every capacity read-modify-write
// goes through this lock.
func (r *PGInventoryRepository) GetBucketForUpdate(ctx context.Context, flightID int64, cabin domain.CabinClass) (*domain.InventoryBucket, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `SELECT flight_id, cabin_class, capacity, held_seats, confirmed_seats, updated_at
		FROM inventory_buckets WHERE flight_id=$1 AND cabin_class=$2 FOR UPDATE`, flightID, cabin)
	return scanBucket(row, flightID, cabin)
}

func (r *PGInventoryRepository) ExpiredHeldSeats(ctx context.Context, flightID int64, cabin domain.CabinClass, now time.Time) (int, error) {
	var seats int
	err := conn(ctx, r.db).QueryRow(ctx, `SELECT COALESCE(SUM(seats), 0) FROM inventory_locks
		WHERE flight_id=$1 AND cabin_class=$2 AND state=$3 AND expires_at <= $4`,
		flightID, cabin, domain.LockHeld, now).Scan(&seats)
	if err != nil {
		return 0, fmt.Errorf("failed to sum expired holds: %w", err)
	}
	return seats, nil
}

func (r *PGInventoryRepository) NextHoldExpiry(ctx context.Context, flightID int64, cabin domain.CabinClass, now time.Time) (time.Time, bool, error) {
	var next *time.Time
	err := conn(ctx, r.db).QueryRow(ctx, `SELECT MIN(expires_at) FROM inventory_locks
		WHERE flight_id=$1 AND cabin_class=$2 AND state=$3 AND expires_at > $4`,
		flightID, cabin, domain.LockHeld, now).Scan(&next)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to find next hold expiry: %w", err)
	}
	if next == nil {
		return time.Time{}, false, nil
	}
	return *next, true, nil
}

func (r *PGInventoryRepository) AdjustBucket(ctx context.Context, flightID int64, cabin domain.CabinClass, heldDelta, confirmedDelta int, now time.Time) error {
	cmd, err := conn(ctx, r.db).Exec(ctx, `UPDATE inventory_buckets
		SET held_seats = held_seats + $3, confirmed_seats = confirmed_seats + $4, updated_at = $5
		WHERE flight_id=$1 AND cabin_class=$2`, flightID, cabin, heldDelta, confirmedDelta, now)
	if err != nil {
		return fmt.Errorf("failed to adjust bucket %d/%s: %w", flightID, cabin, err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("bucket %d/%s: %w", flightID, cabin, domain.ErrNotFound)
	}
	return nil
}

func (r *PGInventoryRepository) CreateLock(ctx context.Context, l *domain.InventoryLock) error {
	_, err := conn(ctx, r.db).Exec(ctx, `INSERT INTO inventory_locks (`+lockColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		l.ID, l.FlightID, l.CabinClass, l.Seats, l.BookingID, l.SessionID, l.State, l.ExpiresAt, l.CreatedAt, l.ResolvedAt)
	if err != nil {
		return fmt.Errorf("failed to insert lock: %w", err)
	}
	return nil
}

func (r *PGInventoryRepository) GetLock(ctx context.Context, id string) (*domain.InventoryLock, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `SELECT `+lockColumns+` FROM inventory_locks WHERE id=$1`, id)
	l, err := scanLock(row)
	if err != nil {
		return nil, notFound(err, "lock "+id)
	}
	return l, nil
}

func (r *PGInventoryRepository) UpdateLockState(ctx context.Context, id string, state domain.LockState, resolvedAt time.Time) error {
	cmd, err := conn(ctx, r.db).Exec(ctx, `UPDATE inventory_locks SET state=$2, resolved_at=$3 WHERE id=$1`, id, state, resolvedAt)
	if err != nil {
		return fmt.Errorf("failed to update lock %s: %w", id, err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("lock %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *PGInventoryRepository) ListExpiredLocks(ctx context.Context, now time.Time, limit int) ([]domain.InventoryLock, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `SELECT `+lockColumns+` FROM inventory_locks
		WHERE state=$1 AND expires_at <= $2 ORDER BY expires_at LIMIT $3`, domain.LockHeld, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired locks: %w", err)
	}
	return collectLocks(rows)
}

func (r *PGInventoryRepository) ListLocksByBooking(ctx context.Context, bookingID int64) ([]domain.InventoryLock, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `SELECT `+lockColumns+` FROM inventory_locks
		WHERE booking_id=$1 ORDER BY created_at`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query booking locks: %w", err)
	}
	return collectLocks(rows)
}

func scanBucket(row pgx.Row, flightID int64, cabin domain.CabinClass) (*domain.InventoryBucket, error) {
	var b domain.InventoryBucket
	if err := row.Scan(&b.FlightID, &b.CabinClass, &b.Capacity, &b.HeldSeats, &b.ConfirmedSeats, &b.UpdatedAt); err != nil {
		return nil, notFound(err, fmt.Sprintf("bucket %d/%s", flightID, cabin))
	}
	return &b, nil
}

func scanLock(row pgx.Row) (*domain.InventoryLock, error) {
	var l domain.InventoryLock
	if err := row.Scan(&l.ID, &l.FlightID, &l.CabinClass, &l.Seats, &l.BookingID, &l.SessionID, &l.State,
		&l.ExpiresAt, &l.CreatedAt, &l.ResolvedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func collectLocks(rows pgx.Rows) ([]domain.InventoryLock, error) {
	defer rows.Close()

	locks := make([]domain.InventoryLock, 0)
	for rows.Next() {
		l, err := scanLock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lock: %w", err)
		}
		locks = append(locks, *l)
	}
	return locks, rows.Err()
}

var _ InventoryRepository = (*PGInventoryRepository)(nil)
