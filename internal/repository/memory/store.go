// Package memory is an in-process implementation of the repository
// interfaces. Each transaction runs under the store mutex against a snapshot
// that is restored when the transaction fails, so it gives the same
// atomicity and isolation guarantees as the PostgreSQL repositories, with
// all transactions serialized.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/bookingflow/internal/domain"
	"github.com/Domenick1991/bookingflow/internal/repository"
)

type bucketKey struct {
	flightID int64
	cabin    domain.CabinClass
}

type state struct {
	nextBookingID int64
	nextHistoryID int64
	bookings      map[int64]*domain.Booking
	references    map[string]int64
	pnrs          map[string]int64
	buckets       map[bucketKey]domain.InventoryBucket
	locks         map[string]domain.InventoryLock
	history       map[int64][]domain.StatusHistoryRecord
}

func newState() *state {
	return &state{
		bookings:   make(map[int64]*domain.Booking),
		references: make(map[string]int64),
		pnrs:       make(map[string]int64),
		buckets:    make(map[bucketKey]domain.InventoryBucket),
		locks:      make(map[string]domain.InventoryLock),
		history:    make(map[int64][]domain.StatusHistoryRecord),
	}
}

func (s *state) clone() *state {
	c := newState()
	c.nextBookingID = s.nextBookingID
	c.nextHistoryID = s.nextHistoryID
	for id, b := range s.bookings {
		c.bookings[id] = b.Clone()
	}
	for k, v := range s.references {
		c.references[k] = v
	}
	for k, v := range s.pnrs {
		c.pnrs[k] = v
	}
	for k, v := range s.buckets {
		c.buckets[k] = v
	}
	for k, v := range s.locks {
		c.locks[k] = cloneLock(v)
	}
	for k, v := range s.history {
		c.history[k] = append([]domain.StatusHistoryRecord(nil), v...)
	}
	return c
}

type txKey struct{}

type Store struct {
	mu    sync.Mutex
	state *state
}

func NewStore() *Store {
	return &Store{state: newState()}
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*Store)
	return ok && owner == s
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	defer func() {
		if r := recover(); r != nil {
			s.state = snapshot
			panic(r)
		}
		if err != nil {
			s.state = snapshot
		}
	}()
	return fn(context.WithValue(ctx, txKey{}, s))
}

func (s *Store) do(ctx context.Context, fn func(st *state) error) error {
	if s.inTx(ctx) {
		return fn(s.state)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

// Bookings

func (s *Store) Create(ctx context.Context, b *domain.Booking) error {
	return s.do(ctx, func(st *state) error {
		if _, ok := st.references[b.Reference]; ok {
			return fmt.Errorf("booking %s: %w", b.Reference, domain.ErrDuplicateReference)
		}
		if _, ok := st.pnrs[b.PNR]; ok {
			return fmt.Errorf("booking %s: %w", b.PNR, domain.ErrDuplicateReference)
		}
		st.nextBookingID++
		b.ID = st.nextBookingID
		st.bookings[b.ID] = b.Clone()
		st.references[b.Reference] = b.ID
		st.pnrs[b.PNR] = b.ID
		return nil
	})
}

func (s *Store) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	var out *domain.Booking
	err := s.do(ctx, func(st *state) error {
		b, ok := st.bookings[id]
		if !ok {
			return fmt.Errorf("booking %d: %w", id, domain.ErrNotFound)
		}
		out = b.Clone()
		return nil
	})
	return out, err
}

// GetByIDForUpdate is GetByID: the store mutex already isolates transactions.
func (s *Store) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Booking, error) {
	return s.GetByID(ctx, id)
}

func (s *Store) GetByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	var out *domain.Booking
	err := s.do(ctx, func(st *state) error {
		id, ok := st.references[reference]
		if !ok {
			return fmt.Errorf("booking %s: %w", reference, domain.ErrNotFound)
		}
		out = st.bookings[id].Clone()
		return nil
	})
	return out, err
}

func (s *Store) Update(ctx context.Context, b *domain.Booking) error {
	return s.do(ctx, func(st *state) error {
		if _, ok := st.bookings[b.ID]; !ok {
			return fmt.Errorf("booking %d: %w", b.ID, domain.ErrNotFound)
		}
		st.bookings[b.ID] = b.Clone()
		return nil
	})
}

// Inventory

func (s *Store) UpsertBucket(ctx context.Context, b domain.InventoryBucket) error {
	return s.do(ctx, func(st *state) error {
		key := bucketKey{b.FlightID, b.CabinClass}
		existing, ok := st.buckets[key]
		if ok {
			existing.Capacity = b.Capacity
			existing.UpdatedAt = b.UpdatedAt
			st.buckets[key] = existing
			return nil
		}
		st.buckets[key] = domain.InventoryBucket{
			FlightID:   b.FlightID,
			CabinClass: b.CabinClass,
			Capacity:   b.Capacity,
			UpdatedAt:  b.UpdatedAt,
		}
		return nil
	})
}

func (s *Store) GetBucket(ctx context.Context, flightID int64, cabin domain.CabinClass) (*domain.InventoryBucket, error) {
	var out *domain.InventoryBucket
	err := s.do(ctx, func(st *state) error {
		b, ok := st.buckets[bucketKey{flightID, cabin}]
		if !ok {
			return fmt.Errorf("bucket %d/%s: %w", flightID, cabin, domain.ErrNotFound)
		}
		out = &b
		return nil
	})
	return out, err
}

func (s *Store) GetBucketForUpdate(ctx context.Context, flightID int64, cabin domain.CabinClass) (*domain.InventoryBucket, error) {
	return s.GetBucket(ctx, flightID, cabin)
}

func (s *Store) ExpiredHeldSeats(ctx context.Context, flightID int64, cabin domain.CabinClass, now time.Time) (int, error) {
	var seats int
	err := s.do(ctx, func(st *state) error {
		for _, l := range st.locks {
			if l.FlightID == flightID && l.CabinClass == cabin && l.State == domain.LockHeld && l.ExpiredAt(now) {
				seats += l.Seats
			}
		}
		return nil
	})
	return seats, err
}

func (s *Store) NextHoldExpiry(ctx context.Context, flightID int64, cabin domain.CabinClass, now time.Time) (time.Time, bool, error) {
	var (
		next  time.Time
		found bool
	)
	err := s.do(ctx, func(st *state) error {
		for _, l := range st.locks {
			if l.FlightID != flightID || l.CabinClass != cabin || l.State != domain.LockHeld || l.ExpiredAt(now) {
				continue
			}
			if !found || l.ExpiresAt.Before(next) {
				next, found = l.ExpiresAt, true
			}
		}
		return nil
	})
	return next, found, err
}

func (s *Store) AdjustBucket(ctx context.Context, flightID int64, cabin domain.CabinClass, heldDelta, confirmedDelta int, now time.Time) error {
	return s.do(ctx, func(st *state) error {
		key := bucketKey{flightID, cabin}
		b, ok := st.buckets[key]
		if !ok {
			return fmt.Errorf("bucket %d/%s: %w", flightID, cabin, domain.ErrNotFound)
		}
		b.HeldSeats += heldDelta
		b.ConfirmedSeats += confirmedDelta
		if b.HeldSeats < 0 || b.ConfirmedSeats < 0 || b.ConfirmedSeats > b.Capacity {
			return fmt.Errorf("bucket %d/%s: counters out of range (held=%d confirmed=%d capacity=%d)",
				flightID, cabin, b.HeldSeats, b.ConfirmedSeats, b.Capacity)
		}
		b.UpdatedAt = now
		st.buckets[key] = b
		return nil
	})
}

func (s *Store) CreateLock(ctx context.Context, l *domain.InventoryLock) error {
	return s.do(ctx, func(st *state) error {
		if _, ok := st.locks[l.ID]; ok {
			return fmt.Errorf("lock %s already exists", l.ID)
		}
		if _, ok := st.buckets[bucketKey{l.FlightID, l.CabinClass}]; !ok {
			return fmt.Errorf("bucket %d/%s: %w", l.FlightID, l.CabinClass, domain.ErrNotFound)
		}
		st.locks[l.ID] = cloneLock(*l)
		return nil
	})
}

func (s *Store) GetLock(ctx context.Context, id string) (*domain.InventoryLock, error) {
	var out *domain.InventoryLock
	err := s.do(ctx, func(st *state) error {
		l, ok := st.locks[id]
		if !ok {
			return fmt.Errorf("lock %s: %w", id, domain.ErrNotFound)
		}
		c := cloneLock(l)
		out = &c
		return nil
	})
	return out, err
}

func (s *Store) UpdateLockState(ctx context.Context, id string, lockState domain.LockState, resolvedAt time.Time) error {
	return s.do(ctx, func(st *state) error {
		l, ok := st.locks[id]
		if !ok {
			return fmt.Errorf("lock %s: %w", id, domain.ErrNotFound)
		}
		l.State = lockState
		l.ResolvedAt = &resolvedAt
		st.locks[id] = l
		return nil
	})
}

func (s *Store) ListExpiredLocks(ctx context.Context, now time.Time, limit int) ([]domain.InventoryLock, error) {
	locks := make([]domain.InventoryLock, 0)
	err := s.do(ctx, func(st *state) error {
		for _, l := range st.locks {
			if l.State == domain.LockHeld && l.ExpiredAt(now) {
				locks = append(locks, cloneLock(l))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(locks, func(i, j int) bool { return locks[i].ExpiresAt.Before(locks[j].ExpiresAt) })
	if limit > 0 && len(locks) > limit {
		locks = locks[:limit]
	}
	return locks, nil
}

func (s *Store) ListLocksByBooking(ctx context.Context, bookingID int64) ([]domain.InventoryLock, error) {
	locks := make([]domain.InventoryLock, 0)
	err := s.do(ctx, func(st *state) error {
		for _, l := range st.locks {
			if l.BookingID == bookingID {
				locks = append(locks, cloneLock(l))
			}
		}
		return nil
	})
	sort.Slice(locks, func(i, j int) bool { return locks[i].CreatedAt.Before(locks[j].CreatedAt) })
	return locks, err
}

// History

func (s *Store) Append(ctx context.Context, rec *domain.StatusHistoryRecord) error {
	return s.do(ctx, func(st *state) error {
		if _, ok := st.bookings[rec.BookingID]; !ok {
			return fmt.Errorf("booking %d: %w", rec.BookingID, domain.ErrNotFound)
		}
		st.nextHistoryID++
		rec.ID = st.nextHistoryID
		st.history[rec.BookingID] = append(st.history[rec.BookingID], *rec)
		return nil
	})
}

func (s *Store) ListByBooking(ctx context.Context, bookingID int64) ([]domain.StatusHistoryRecord, error) {
	var out []domain.StatusHistoryRecord
	err := s.do(ctx, func(st *state) error {
		out = append(make([]domain.StatusHistoryRecord, 0, len(st.history[bookingID])), st.history[bookingID]...)
		return nil
	})
	return out, err
}

func cloneLock(l domain.InventoryLock) domain.InventoryLock {
	if l.ResolvedAt != nil {
		t := *l.ResolvedAt
		l.ResolvedAt = &t
	}
	return l
}

var (
	_ repository.TxManager           = (*Store)(nil)
	_ repository.BookingRepository   = (*Store)(nil)
	_ repository.InventoryRepository = (*Store)(nil)
	_ repository.HistoryRepository   = (*Store)(nil)
)
