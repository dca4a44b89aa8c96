package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Domenick1991/bookingflow/internal/clock"
	"github.com/Domenick1991/bookingflow/internal/domain"
	"github.com/Domenick1991/bookingflow/internal/repository/memory"
	"github.com/Domenick1991/bookingflow/internal/service/booking"
	"github.com/Domenick1991/bookingflow/internal/service/history"
	"github.com/Domenick1991/bookingflow/internal/service/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockLocks struct {
	mock.Mock
}

func (m *MockLocks) GetExpiredLocks(ctx context.Context, now time.Time) ([]domain.InventoryLock, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.InventoryLock), args.Error(1)
}

func (m *MockLocks) ReleaseLock(ctx context.Context, lockID string) error {
	return m.Called(ctx, lockID).Error(0)
}

type MockBookings struct {
	mock.Mock
}

func (m *MockBookings) GetBooking(ctx context.Context, bookingID int64) (*domain.Booking, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookings) Transition(ctx context.Context, bookingID int64, to domain.BookingStatus, reason string, actor domain.Actor) (*domain.Booking, error) {
	args := m.Called(ctx, bookingID, to, reason, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

var now = time.Date(2026, 9, 1, 6, 0, 0, 0, time.UTC)

func held(id string, bookingID int64) domain.InventoryLock {
	return domain.InventoryLock{ID: id, BookingID: bookingID, State: domain.LockHeld, Seats: 1, ExpiresAt: now.Add(-time.Minute)}
}

func bookingWithLock(id int64, status domain.BookingStatus, lockID string) *domain.Booking {
	return &domain.Booking{ID: id, Status: status, LockID: &lockID}
}

func TestSweeper_SweepOnce(t *testing.T) {
	locks := &MockLocks{}
	bookings := &MockBookings{}
	s := New(locks, bookings, WithClock(clock.NewFake(now)), WithConcurrency(2))
	ctx := context.Background()

	locks.On("GetExpiredLocks", ctx, now).Return([]domain.InventoryLock{
		held("l1", 1), // reserved: expires
		held("l2", 2), // paid in the meantime: skipped
		held("l3", 3), // lost the race to a payment: skipped
		held("l4", 4), // store failure: counted as failed
		held("l5", 5), // booking points at a newer hold: released
		held("l6", 0), // no booking at all: released
		held("l7", 1), // second hold of booking 1 in this batch: skipped
	}, nil)

	bookings.On("GetBooking", ctx, int64(1)).Return(bookingWithLock(1, domain.StatusReserved, "l1"), nil)
	bookings.On("GetBooking", ctx, int64(2)).Return(bookingWithLock(2, domain.StatusPaid, "l2"), nil)
	bookings.On("GetBooking", ctx, int64(3)).Return(bookingWithLock(3, domain.StatusReserved, "l3"), nil)
	bookings.On("GetBooking", ctx, int64(4)).Return(nil, errors.New("connection refused"))
	bookings.On("GetBooking", ctx, int64(5)).Return(bookingWithLock(5, domain.StatusReserved, "newer"), nil)

	bookings.On("Transition", ctx, int64(1), domain.StatusExpired, ReasonTimeout, domain.SystemActor()).
		Return(&domain.Booking{ID: 1, Status: domain.StatusExpired}, nil)
	bookings.On("Transition", ctx, int64(3), domain.StatusExpired, ReasonTimeout, domain.SystemActor()).
		Return(nil, &domain.TransitionError{BookingID: 3, From: domain.StatusPaid, To: domain.StatusExpired})

	locks.On("ReleaseLock", ctx, "l5").Return(nil)
	locks.On("ReleaseLock", ctx, "l6").Return(nil)

	res, err := s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Scanned: 7, Expired: 1, Released: 2, Skipped: 3, Failed: 1}, res)

	bookings.AssertNotCalled(t, "Transition", mock.Anything, int64(2), mock.Anything, mock.Anything, mock.Anything)
	locks.AssertExpectations(t)
	bookings.AssertExpectations(t)
}

func TestSweeper_SweepOnceScanError(t *testing.T) {
	locks := &MockLocks{}
	s := New(locks, &MockBookings{}, WithClock(clock.NewFake(now)))
	boom := errors.New("scan failed")
	locks.On("GetExpiredLocks", mock.Anything, now).Return(nil, boom)

	_, err := s.SweepOnce(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	locks := &MockLocks{}
	s := New(locks, &MockBookings{}, WithClock(clock.NewFake(now)), WithInterval(10*time.Millisecond))
	var sweeps atomic.Int32
	locks.On("GetExpiredLocks", mock.Anything, now).Return([]domain.InventoryLock{}, nil).
		Run(func(mock.Arguments) { sweeps.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return sweeps.Load() >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeper_ExpiryRestoresCapacity(t *testing.T) {
	store := memory.NewStore()
	clk := clock.NewFake(now)
	inv := inventory.NewManager(store, store, inventory.WithClock(clk))
	svc := booking.NewBookingService(store, store, inv, history.NewLedger(store, clk), booking.WithClock(clk))
	ctx := context.Background()

	_, err := inv.SetCapacity(ctx, 1, domain.CabinBusiness, 3)
	require.NoError(t, err)

	res, err := svc.CreateBooking(ctx, booking.CreateBookingInput{FlightID: 1, CabinClass: domain.CabinBusiness, Seats: 3})
	require.NoError(t, err)
	_, err = svc.CreateBooking(ctx, booking.CreateBookingInput{FlightID: 1, CabinClass: domain.CabinBusiness, Seats: 1})
	require.ErrorIs(t, err, domain.ErrCapacityExceeded)

	s := New(inv, svc, WithClock(clk))
	swept, err := s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, swept.Scanned)

	clk.Advance(inventory.DefaultHoldTTL)
	swept, err = s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Scanned: 1, Expired: 1}, swept)

	status, err := svc.GetStatus(ctx, res.BookingID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, status)

	records, err := svc.GetHistory(ctx, res.BookingID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, ReasonTimeout, records[2].Reason)
	assert.Equal(t, domain.SystemActor(), records[2].Actor)

	a, err := inv.Availability(ctx, 1, domain.CabinBusiness)
	require.NoError(t, err)
	assert.Equal(t, 3, a.Available)
	assert.Equal(t, 0, a.HeldSeats)

	swept, err = s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, swept)
}
