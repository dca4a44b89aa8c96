package inventory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Domenick1991/bookingflow/internal/clock"
	"github.com/Domenick1991/bookingflow/internal/domain"
	"github.com/Domenick1991/bookingflow/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultHoldTTL   = 15 * time.Minute
	defaultScanLimit = 500
)

type InventoryUseCase interface {
	CreateLock(ctx context.Context, input CreateLockInput) (*domain.InventoryLock, error)
	ReleaseLock(ctx context.Context, lockID string) error
	ConvertToConfirmed(ctx context.Context, lockID string) error
	ReturnConfirmed(ctx context.Context, lockID string) error
	GetExpiredLocks(ctx context.Context, now time.Time) ([]domain.InventoryLock, error)
	LocksByBooking(ctx context.Context, bookingID int64) ([]domain.InventoryLock, error)
	Availability(ctx context.Context, flightID int64, cabin domain.CabinClass) (*domain.Availability, error)
	SetCapacity(ctx context.Context, flightID int64, cabin domain.CabinClass, capacity int) (*domain.Availability, error)
}

type AvailabilityCache interface {
	GetAvailability(ctx context.Context, flightID int64, cabin domain.CabinClass) (*domain.Availability, error)
	// SetAvailability caches a; a positive maxAge shortens the entry's lifetime.
	SetAvailability(ctx context.Context, a domain.Availability, maxAge time.Duration) error
	InvalidateAvailability(ctx context.Context, flightID int64, cabin domain.CabinClass) error
}

type CreateLockInput struct {
	FlightID   int64
	CabinClass domain.CabinClass
	Seats      int
	BookingID  int64
	SessionID  string
	// TTL <= 0 selects the manager's hold TTL.
	TTL time.Duration
}

// Manager grants and resolves seat holds. Every counter change happens in a
// transaction that holds the bucket row lock, so capacity checks are
// linearizable per (flight, cabin) bucket.
type Manager struct {
	tx        repository.TxManager
	repo      repository.InventoryRepository
	cache     AvailabilityCache
	clock     clock.Clock
	holdTTL   time.Duration
	scanLimit int
	log       logrus.FieldLogger
}

type ManagerOption func(*Manager)

func WithCache(cache AvailabilityCache) ManagerOption {
	return func(m *Manager) {
		m.cache = cache
	}
}

func WithClock(c clock.Clock) ManagerOption {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithHoldTTL overrides the default TTL for new holds.
func WithHoldTTL(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.holdTTL = d
		}
	}
}

// WithScanLimit bounds how many expired locks one GetExpiredLocks call returns.
func WithScanLimit(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.scanLimit = n
		}
	}
}

func WithLogger(log logrus.FieldLogger) ManagerOption {
	return func(m *Manager) {
		m.log = log
	}
}

func NewManager(tx repository.TxManager, repo repository.InventoryRepository, opts ...ManagerOption) *Manager {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	m := &Manager{
		tx:        tx,
		repo:      repo,
		clock:     clock.Real{},
		holdTTL:   DefaultHoldTTL,
		scanLimit: defaultScanLimit,
		log:       discard,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) HoldTTL() time.Duration { return m.holdTTL }

func (m *Manager) CreateLock(ctx context.Context, in CreateLockInput) (*domain.InventoryLock, error) {
	if in.Seats < 1 {
		return nil, fmt.Errorf("%w: seats must be at least 1", domain.ErrValidation)
	}
	if !in.CabinClass.Valid() {
		return nil, fmt.Errorf("%w: unknown cabin class %q", domain.ErrValidation, in.CabinClass)
	}
	ttl := in.TTL
	if ttl <= 0 {
		ttl = m.holdTTL
	}
	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	var lock *domain.InventoryLock
	err := m.tx.WithTx(ctx, func(ctx context.Context) error {
		now := m.clock.Now()
		bucket, err := m.repo.GetBucketForUpdate(ctx, in.FlightID, in.CabinClass)
		if err != nil {
			return err
		}

		active, err := m.activeHeld(ctx, bucket, now)
		if err != nil {
			return err
		}
		available := bucket.Capacity - active - bucket.ConfirmedSeats
		if in.Seats > available {
			return &domain.CapacityError{
				FlightID:   in.FlightID,
				CabinClass: in.CabinClass,
				Requested:  in.Seats,
				Available:  max(available, 0),
			}
		}

		lock = &domain.InventoryLock{
			ID:         uuid.NewString(),
			FlightID:   in.FlightID,
			CabinClass: in.CabinClass,
			Seats:      in.Seats,
			BookingID:  in.BookingID,
			SessionID:  sessionID,
			State:      domain.LockHeld,
			ExpiresAt:  now.Add(ttl),
			CreatedAt:  now,
		}
		if err := m.repo.CreateLock(ctx, lock); err != nil {
			return err
		}
		return m.repo.AdjustBucket(ctx, in.FlightID, in.CabinClass, in.Seats, 0, now)
	})
	if err != nil {
		return nil, err
	}

	m.invalidate(ctx, in.FlightID, in.CabinClass)
	m.log.WithFields(logrus.Fields{
		"lock_id":    lock.ID,
		"booking_id": lock.BookingID,
		"flight_id":  lock.FlightID,
		"cabin":      lock.CabinClass,
		"seats":      lock.Seats,
	}).Debug("seat hold created")
	return lock, nil
}

// ReleaseLock returns held seats to the pool. Releasing a lock that is no
// longer held is a no-op.
func (m *Manager) ReleaseLock(ctx context.Context, lockID string) error {
	return m.resolve(ctx, lockID, func(ctx context.Context, l *domain.InventoryLock, _ *domain.InventoryBucket, now time.Time) (bool, error) {
		if l.Released() {
			return false, nil
		}
		return true, m.setState(ctx, l, domain.LockReleased, -l.Seats, 0, now)
	})
}

// ConvertToConfirmed moves a hold's seats from held to confirmed. A hold that
// is past its deadline converts only if its seats were not taken meanwhile.
func (m *Manager) ConvertToConfirmed(ctx context.Context, lockID string) error {
	return m.resolve(ctx, lockID, func(ctx context.Context, l *domain.InventoryLock, bucket *domain.InventoryBucket, now time.Time) (bool, error) {
		switch l.State {
		case domain.LockConfirmed:
			return false, nil
		case domain.LockReleased, domain.LockReturned:
			return false, fmt.Errorf("lock %s is %s: %w", l.ID, l.State, domain.ErrLockExpired)
		}

		if l.ExpiredAt(now) {
			active, err := m.activeHeld(ctx, bucket, now)
			if err != nil {
				return false, err
			}
			if l.Seats > bucket.Capacity-active-bucket.ConfirmedSeats {
				return false, fmt.Errorf("lock %s expired at %s: %w", l.ID, l.ExpiresAt.Format(time.RFC3339), domain.ErrLockExpired)
			}
		}
		return true, m.setState(ctx, l, domain.LockConfirmed, -l.Seats, l.Seats, now)
	})
}

// ReturnConfirmed gives sold seats back to the pool. A lock that is still held
// is released instead; already returned or released locks are left alone.
func (m *Manager) ReturnConfirmed(ctx context.Context, lockID string) error {
	return m.resolve(ctx, lockID, func(ctx context.Context, l *domain.InventoryLock, _ *domain.InventoryBucket, now time.Time) (bool, error) {
		switch l.State {
		case domain.LockHeld:
			return true, m.setState(ctx, l, domain.LockReleased, -l.Seats, 0, now)
		case domain.LockConfirmed:
			return true, m.setState(ctx, l, domain.LockReturned, 0, -l.Seats, now)
		}
		return false, nil
	})
}

func (m *Manager) GetExpiredLocks(ctx context.Context, now time.Time) ([]domain.InventoryLock, error) {
	return m.repo.ListExpiredLocks(ctx, now, m.scanLimit)
}

func (m *Manager) LocksByBooking(ctx context.Context, bookingID int64) ([]domain.InventoryLock, error) {
	return m.repo.ListLocksByBooking(ctx, bookingID)
}

// Availability reports the bucket with lazy expiry applied. A cached value
// never outlives the next hold deadline in the bucket, so a lapsing hold is
// reflected without any write.
func (m *Manager) Availability(ctx context.Context, flightID int64, cabin domain.CabinClass) (*domain.Availability, error) {
	if m.cache != nil {
		if cached, err := m.cache.GetAvailability(ctx, flightID, cabin); err == nil && cached != nil {
			return cached, nil
		}
	}

	bucket, err := m.repo.GetBucket(ctx, flightID, cabin)
	if err != nil {
		return nil, err
	}
	now := m.clock.Now()
	a, err := m.availability(ctx, bucket, now)
	if err != nil {
		return nil, err
	}
	if m.cache != nil {
		m.cacheAvailability(ctx, *a, now)
	}
	return a, nil
}

func (m *Manager) cacheAvailability(ctx context.Context, a domain.Availability, now time.Time) {
	next, ok, err := m.repo.NextHoldExpiry(ctx, a.FlightID, a.CabinClass, now)
	if err != nil {
		m.log.WithError(err).Warn("failed to read next hold expiry, availability not cached")
		return
	}
	var maxAge time.Duration
	if ok {
		maxAge = next.Sub(now)
	}
	if err := m.cache.SetAvailability(ctx, a, maxAge); err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{"flight_id": a.FlightID, "cabin": a.CabinClass}).Warn("failed to cache availability")
	}
}

// SetCapacity creates a bucket or resizes it. Shrinking below the seats that
// are currently held or sold is rejected.
func (m *Manager) SetCapacity(ctx context.Context, flightID int64, cabin domain.CabinClass, capacity int) (*domain.Availability, error) {
	if capacity < 0 {
		return nil, fmt.Errorf("%w: capacity must not be negative", domain.ErrValidation)
	}
	if !cabin.Valid() {
		return nil, fmt.Errorf("%w: unknown cabin class %q", domain.ErrValidation, cabin)
	}

	var result *domain.Availability
	err := m.tx.WithTx(ctx, func(ctx context.Context) error {
		now := m.clock.Now()
		bucket, err := m.repo.GetBucketForUpdate(ctx, flightID, cabin)
		if err != nil && !isNotFound(err) {
			return err
		}
		if bucket != nil {
			active, err := m.activeHeld(ctx, bucket, now)
			if err != nil {
				return err
			}
			if inUse := active + bucket.ConfirmedSeats; capacity < inUse {
				return fmt.Errorf("%w: capacity %d is below %d seats in use", domain.ErrValidation, capacity, inUse)
			}
		}

		if err := m.repo.UpsertBucket(ctx, domain.InventoryBucket{FlightID: flightID, CabinClass: cabin, Capacity: capacity, UpdatedAt: now}); err != nil {
			return err
		}
		updated, err := m.repo.GetBucket(ctx, flightID, cabin)
		if err != nil {
			return err
		}
		result, err = m.availability(ctx, updated, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.invalidate(ctx, flightID, cabin)
	m.log.WithFields(logrus.Fields{"flight_id": flightID, "cabin": cabin, "capacity": capacity}).Info("bucket capacity set")
	return result, nil
}

type resolveFunc func(ctx context.Context, l *domain.InventoryLock, bucket *domain.InventoryBucket, now time.Time) (changed bool, err error)

// resolve locks the lock's bucket, re-reads the lock under that row lock and
// applies fn. Lock rows are only ever mutated while their bucket is locked.
func (m *Manager) resolve(ctx context.Context, lockID string, fn resolveFunc) error {
	var (
		lock    *domain.InventoryLock
		changed bool
	)
	err := m.tx.WithTx(ctx, func(ctx context.Context) error {
		l, err := m.repo.GetLock(ctx, lockID)
		if err != nil {
			return err
		}
		bucket, err := m.repo.GetBucketForUpdate(ctx, l.FlightID, l.CabinClass)
		if err != nil {
			return err
		}
		lock, err = m.repo.GetLock(ctx, lockID)
		if err != nil {
			return err
		}
		changed, err = fn(ctx, lock, bucket, m.clock.Now())
		return err
	})
	if err != nil {
		return err
	}
	if changed {
		m.invalidate(ctx, lock.FlightID, lock.CabinClass)
	}
	return nil
}

func (m *Manager) setState(ctx context.Context, l *domain.InventoryLock, state domain.LockState, heldDelta, confirmedDelta int, now time.Time) error {
	if err := m.repo.UpdateLockState(ctx, l.ID, state, now); err != nil {
		return err
	}
	if err := m.repo.AdjustBucket(ctx, l.FlightID, l.CabinClass, heldDelta, confirmedDelta, now); err != nil {
		return err
	}
	m.log.WithFields(logrus.Fields{
		"lock_id":    l.ID,
		"booking_id": l.BookingID,
		"from":       l.State,
		"to":         state,
	}).Debug("seat hold resolved")
	l.State = state
	l.ResolvedAt = &now
	return nil
}

// activeHeld applies lazy expiry: holds past their deadline stop counting
// against capacity even before the sweeper releases them.
func (m *Manager) activeHeld(ctx context.Context, bucket *domain.InventoryBucket, now time.Time) (int, error) {
	stale, err := m.repo.ExpiredHeldSeats(ctx, bucket.FlightID, bucket.CabinClass, now)
	if err != nil {
		return 0, err
	}
	return max(bucket.HeldSeats-stale, 0), nil
}

func (m *Manager) availability(ctx context.Context, bucket *domain.InventoryBucket, now time.Time) (*domain.Availability, error) {
	active, err := m.activeHeld(ctx, bucket, now)
	if err != nil {
		return nil, err
	}
	return &domain.Availability{
		FlightID:       bucket.FlightID,
		CabinClass:     bucket.CabinClass,
		Capacity:       bucket.Capacity,
		HeldSeats:      active,
		ConfirmedSeats: bucket.ConfirmedSeats,
		Available:      max(bucket.Capacity-active-bucket.ConfirmedSeats, 0),
	}, nil
}

func (m *Manager) invalidate(ctx context.Context, flightID int64, cabin domain.CabinClass) {
	if m.cache == nil {
		return
	}
	if err := m.cache.InvalidateAvailability(ctx, flightID, cabin); err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{"flight_id": flightID, "cabin": cabin}).Warn("failed to invalidate availability cache")
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

var _ InventoryUseCase = (*Manager)(nil)
