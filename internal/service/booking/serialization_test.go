package booking

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Domenick1991/bookingflow/internal/clock"
	"github.com/Domenick1991/bookingflow/internal/domain"
	"github.com/Domenick1991/bookingflow/internal/keylock"
	"github.com/Domenick1991/bookingflow/internal/repository"
	"github.com/Domenick1991/bookingflow/internal/repository/memory"
	"github.com/Domenick1991/bookingflow/internal/service/history"
	"github.com/Domenick1991/bookingflow/internal/service/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unisolatedTx gives no isolation at all: concurrent transitions interleave
// freely unless the Locker keeps them apart.
type unisolatedTx struct{}

func (unisolatedTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type noopLocker struct{}

func (noopLocker) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}

// globalLocker serializes every booking behind one mutex.
type globalLocker struct {
	mu sync.Mutex
}

func (l *globalLocker) Lock(context.Context, string) (func(), error) {
	l.mu.Lock()
	return l.mu.Unlock, nil
}

// rendezvousBookings parks each row read until `parties` reads sharing a
// group have arrived or `wait` elapses, widening the read-modify-write window.
type rendezvousBookings struct {
	repository.BookingRepository
	parties int
	wait    time.Duration
	group   func(bookingID int64) int64

	mu       sync.Mutex
	arrived  map[int64]int
	gates    map[int64]chan struct{}
	timeouts atomic.Int32
}

func newRendezvousBookings(repo repository.BookingRepository, parties int, wait time.Duration, group func(int64) int64) *rendezvousBookings {
	return &rendezvousBookings{
		BookingRepository: repo,
		parties:           parties,
		wait:              wait,
		group:             group,
		arrived:           make(map[int64]int),
		gates:             make(map[int64]chan struct{}),
	}
}

func (r *rendezvousBookings) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Booking, error) {
	b, err := r.BookingRepository.GetByIDForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}

	key := r.group(id)
	r.mu.Lock()
	gate, ok := r.gates[key]
	if !ok {
		gate = make(chan struct{})
		r.gates[key] = gate
	}
	r.arrived[key]++
	if r.arrived[key] == r.parties {
		close(gate)
	}
	r.mu.Unlock()

	select {
	case <-gate:
	case <-time.After(r.wait):
		r.timeouts.Add(1)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b, nil
}

func perBooking(id int64) int64 { return id }

func allBookings(int64) int64 { return 0 }

type unisolatedEnv struct {
	svc      *BookingService
	inv      *inventory.Manager
	bookings *rendezvousBookings
}

func newUnisolatedEnv(t *testing.T, capacity int, locker Locker, wait time.Duration, group func(int64) int64) *unisolatedEnv {
	t.Helper()
	store := memory.NewStore()
	clk := clock.NewFake(start)
	inv := inventory.NewManager(store, store, inventory.WithClock(clk))
	_, err := inv.SetCapacity(context.Background(), flightID, domain.CabinEconomy, capacity)
	require.NoError(t, err)

	bookings := newRendezvousBookings(store, 2, wait, group)
	svc := NewBookingService(unisolatedTx{}, bookings, inv, history.NewLedger(store, clk), WithClock(clk), WithLocker(locker))
	return &unisolatedEnv{svc: svc, inv: inv, bookings: bookings}
}

func (e *unisolatedEnv) create(t *testing.T, seats int) *domain.Booking {
	t.Helper()
	res, err := e.svc.CreateBooking(context.Background(), CreateBookingInput{
		FlightID:   flightID,
		CabinClass: domain.CabinEconomy,
		Seats:      seats,
	})
	require.NoError(t, err)
	return res.Booking
}

func raceTwo(first, second func() error) [2]error {
	var (
		wg   sync.WaitGroup
		errs [2]error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = first()
	}()
	go func() {
		defer wg.Done()
		errs[1] = second()
	}()
	wg.Wait()
	return errs
}

func TestBookingService_WithoutLockerRaceHasTwoWinners(t *testing.T) {
	e := newUnisolatedEnv(t, 3, noopLocker{}, time.Second, perBooking)
	ctx := context.Background()
	b := e.create(t, 3)

	errs := raceTwo(
		func() error {
			_, err := e.svc.CancelBooking(ctx, b.ID, "user cancel", domain.UserActor(userID))
			return err
		},
		func() error {
			_, err := e.svc.Transition(ctx, b.ID, domain.StatusExpired, "Reservation timeout", domain.SystemActor())
			return err
		},
	)

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Zero(t, e.bookings.timeouts.Load())

	records, err := e.svc.GetHistory(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, records, 4)
	assert.Error(t, domain.ValidateTrail(records))
}

func TestBookingService_KeyedLockerKeepsOneWinner(t *testing.T) {
	cases := []struct {
		name  string
		first func(svc *BookingService, id int64) error
	}{
		{
			name: "cancelled versus expired",
			first: func(svc *BookingService, id int64) error {
				_, err := svc.CancelBooking(context.Background(), id, "user cancel", domain.UserActor(userID))
				return err
			},
		},
		{
			name: "paid versus expired",
			first: func(svc *BookingService, id int64) error {
				_, err := svc.ConfirmPayment(context.Background(), id, "pay_race")
				return err
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newUnisolatedEnv(t, 3, keylock.New(), 50*time.Millisecond, perBooking)
			ctx := context.Background()
			b := e.create(t, 3)

			errs := raceTwo(
				func() error { return tc.first(e.svc, b.ID) },
				func() error {
					_, err := e.svc.Transition(ctx, b.ID, domain.StatusExpired, "Reservation timeout", domain.SystemActor())
					return err
				},
			)

			var wins int
			for _, err := range errs {
				if err == nil {
					wins++
					continue
				}
				assert.ErrorIs(t, err, domain.ErrInvalidTransition)
			}
			assert.Equal(t, 1, wins)

			records, err := e.svc.GetHistory(ctx, b.ID)
			require.NoError(t, err)
			assert.Len(t, records, 3)
			assert.NoError(t, domain.ValidateTrail(records))

			a, err := e.inv.Availability(ctx, flightID, domain.CabinEconomy)
			require.NoError(t, err)
			assert.Equal(t, 0, a.HeldSeats)
		})
	}
}

func TestBookingService_DifferentBookingsTransitionInParallel(t *testing.T) {
	cases := []struct {
		name         string
		locker       Locker
		wait         time.Duration
		wantTimeouts bool
	}{
		{name: "keyed locker", locker: keylock.New(), wait: 2 * time.Second},
		{name: "single global lock", locker: &globalLocker{}, wait: 100 * time.Millisecond, wantTimeouts: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newUnisolatedEnv(t, 4, tc.locker, tc.wait, allBookings)
			ctx := context.Background()
			first := e.create(t, 2)
			second := e.create(t, 2)

			errs := raceTwo(
				func() error {
					_, err := e.svc.ConfirmPayment(ctx, first.ID, "pay_first")
					return err
				},
				func() error {
					_, err := e.svc.CancelBooking(ctx, second.ID, "", domain.UserActor(userID))
					return err
				},
			)
			require.NoError(t, errs[0])
			require.NoError(t, errs[1])

			// both reads must be in flight together unless the locker spans bookings
			if tc.wantTimeouts {
				assert.Equal(t, int32(1), e.bookings.timeouts.Load())
			} else {
				assert.Zero(t, e.bookings.timeouts.Load())
			}

			a, err := e.inv.Availability(ctx, flightID, domain.CabinEconomy)
			require.NoError(t, err)
			assert.Equal(t, 2, a.ConfirmedSeats)
			assert.Equal(t, 0, a.HeldSeats)
		})
	}
}
