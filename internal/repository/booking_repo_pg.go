package repository

import (
	"context"
	"fmt"

	"github.com/Domenick1991/bookingflow/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const bookingColumns = `id, reference, pnr, flight_id, cabin_class, seats, number_of_passengers, total_amount, currency,
	user_id, session_id, status, payment_reference, lock_id, expires_at, refund_eligible, created_at, updated_at`

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

func (r *PGBookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	err := conn(ctx, r.db).QueryRow(ctx, `INSERT INTO bookings (reference, pnr, flight_id, cabin_class, seats, number_of_passengers,
		total_amount, currency, user_id, session_id, status, payment_reference, lock_id, expires_at, refund_eligible, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`,
		b.Reference, b.PNR, b.FlightID, b.CabinClass, b.Seats, b.NumberOfPassengers,
		b.TotalAmount, b.Currency, b.UserID, b.SessionID, b.Status, b.PaymentReference, b.LockID, b.ExpiresAt,
		b.RefundEligible, b.CreatedAt, b.UpdatedAt).Scan(&b.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("booking %s/%s: %w", b.Reference, b.PNR, domain.ErrDuplicateReference)
		}
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id)
	return scanBooking(row, fmt.Sprintf("booking %d", id))
}

// GetByIDForUpdate row-locks the booking until the surrounding transaction ends.
func (r *PGBookingRepository) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Booking, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1 FOR UPDATE`, id)
	return scanBooking(row, fmt.Sprintf("booking %d", id))
}

func (r *PGBookingRepository) GetByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE reference=$1`, reference)
	return scanBooking(row, fmt.Sprintf("booking %s", reference))
}

func (r *PGBookingRepository) Update(ctx context.Context, b *domain.Booking) error {
	cmd, err := conn(ctx, r.db).Exec(ctx, `UPDATE bookings SET status=$2, payment_reference=$3, lock_id=$4, expires_at=$5,
		refund_eligible=$6, session_id=$7, updated_at=$8 WHERE id=$1`,
		b.ID, b.Status, b.PaymentReference, b.LockID, b.ExpiresAt, b.RefundEligible, b.SessionID, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update booking %d: %w", b.ID, err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("booking %d: %w", b.ID, domain.ErrNotFound)
	}
	return nil
}

func scanBooking(row pgx.Row, what string) (*domain.Booking, error) {
	var b domain.Booking
	if err := row.Scan(&b.ID, &b.Reference, &b.PNR, &b.FlightID, &b.CabinClass, &b.Seats, &b.NumberOfPassengers,
		&b.TotalAmount, &b.Currency, &b.UserID, &b.SessionID, &b.Status, &b.PaymentReference, &b.LockID,
		&b.ExpiresAt, &b.RefundEligible, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, notFound(err, what)
	}
	return &b, nil
}

var _ BookingRepository = (*PGBookingRepository)(nil)
