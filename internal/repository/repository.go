package repository

import (
	"context"
	"time"

	"github.com/Domenick1991/bookingflow/internal/domain"
)

// TxManager runs fn in one atomic unit. Repositories called with the ctx
// passed to fn join that unit; nested WithTx calls join the outer one.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.Booking, error)
	GetByReference(ctx context.Context, reference string) (*domain.Booking, error)
	Update(ctx context.Context, booking *domain.Booking) error
}

type InventoryRepository interface {
	UpsertBucket(ctx context.Context, bucket domain.InventoryBucket) error
	GetBucket(ctx context.Context, flightID int64, cabin domain.CabinClass) (*domain.InventoryBucket, error)
	GetBucketForUpdate(ctx context.Context, flightID int64, cabin domain.CabinClass) (*domain.InventoryBucket, error)
	// ExpiredHeldSeats sums seats of held locks in the bucket whose deadline is <= now.
	ExpiredHeldSeats(ctx context.Context, flightID int64, cabin domain.CabinClass, now time.Time) (int, error)
	// NextHoldExpiry returns the earliest deadline after now among held locks
	// in the bucket; ok is false when no such lock exists.
	NextHoldExpiry(ctx context.Context, flightID int64, cabin domain.CabinClass, now time.Time) (next time.Time, ok bool, err error)
	AdjustBucket(ctx context.Context, flightID int64, cabin domain.CabinClass, heldDelta, confirmedDelta int, now time.Time) error

	CreateLock(ctx context.Context, lock *domain.InventoryLock) error
	GetLock(ctx context.Context, id string) (*domain.InventoryLock, error)
	UpdateLockState(ctx context.Context, id string, state domain.LockState, resolvedAt time.Time) error
	ListExpiredLocks(ctx context.Context, now time.Time, limit int) ([]domain.InventoryLock, error)
	ListLocksByBooking(ctx context.Context, bookingID int64) ([]domain.InventoryLock, error)
}

type HistoryRepository interface {
	Append(ctx context.Context, record *domain.StatusHistoryRecord) error
	ListByBooking(ctx context.Context, bookingID int64) ([]domain.StatusHistoryRecord, error)
}
