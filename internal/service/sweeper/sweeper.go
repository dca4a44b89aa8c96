// Package sweeper expires bookings whose seat holds ran out.
package sweeper

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/Domenick1991/bookingflow/internal/clock"
	"github.com/Domenick1991/bookingflow/internal/domain"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultInterval    = time.Minute
	defaultConcurrency = 4

	ReasonTimeout = "Reservation timeout"
)

type Locks interface {
	GetExpiredLocks(ctx context.Context, now time.Time) ([]domain.InventoryLock, error)
	ReleaseLock(ctx context.Context, lockID string) error
}

type Bookings interface {
	GetBooking(ctx context.Context, bookingID int64) (*domain.Booking, error)
	Transition(ctx context.Context, bookingID int64, to domain.BookingStatus, reason string, actor domain.Actor) (*domain.Booking, error)
}

// Result counts what one sweep did. Released counts stale holds no booking
// points at any more; they are freed without a status change.
type Result struct {
	Scanned  int
	Expired  int
	Released int
	Skipped  int
	Failed   int
}

type Sweeper struct {
	locks       Locks
	bookings    Bookings
	clock       clock.Clock
	interval    time.Duration
	concurrency int
	log         logrus.FieldLogger
}

type Option func(*Sweeper)

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithConcurrency(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Sweeper) {
		s.clock = c
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Sweeper) {
		s.log = log
	}
}

func New(locks Locks, bookings Bookings, opts ...Option) *Sweeper {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	s := &Sweeper{
		locks:       locks,
		bookings:    bookings,
		clock:       clock.Real{},
		interval:    DefaultInterval,
		concurrency: defaultConcurrency,
		log:         discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.WithError(err).Error("expiry sweep failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SweepOnce expires every booking that still waits on a hold past its
// deadline. A failure on one booking is logged and counted; it never stops
// the rest of the batch.
func (s *Sweeper) SweepOnce(ctx context.Context) (Result, error) {
	now := s.clock.Now()
	locks, err := s.locks.GetExpiredLocks(ctx, now)
	if err != nil {
		return Result{}, err
	}

	var expired, released, skipped, failed atomic.Int64
	seen := make(map[int64]bool, len(locks))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, lock := range locks {
		if lock.BookingID != 0 {
			if seen[lock.BookingID] {
				skipped.Add(1)
				continue
			}
			seen[lock.BookingID] = true
		}

		lock := lock
		g.Go(func() error {
			outcome, err := s.sweepLock(ctx, lock)
			log := s.log.WithFields(logrus.Fields{"booking_id": lock.BookingID, "lock_id": lock.ID})
			switch {
			case err != nil:
				failed.Add(1)
				log.WithError(err).Warn("failed to expire booking")
			case outcome == outcomeExpired:
				expired.Add(1)
				log.Info("booking expired")
			case outcome == outcomeReleased:
				released.Add(1)
				log.Debug("stale hold released")
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := Result{
		Scanned:  len(locks),
		Expired:  int(expired.Load()),
		Released: int(released.Load()),
		Skipped:  int(skipped.Load()),
		Failed:   int(failed.Load()),
	}
	if res.Scanned > 0 {
		s.log.WithFields(logrus.Fields{
			"scanned":  res.Scanned,
			"expired":  res.Expired,
			"released": res.Released,
			"skipped":  res.Skipped,
			"failed":   res.Failed,
		}).Info("expiry sweep finished")
	}
	return res, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeExpired
	outcomeReleased
)

func (s *Sweeper) sweepLock(ctx context.Context, lock domain.InventoryLock) (outcome, error) {
	if lock.BookingID == 0 {
		return outcomeReleased, s.locks.ReleaseLock(ctx, lock.ID)
	}

	b, err := s.bookings.GetBooking(ctx, lock.BookingID)
	if errors.Is(err, domain.ErrNotFound) {
		return outcomeReleased, s.locks.ReleaseLock(ctx, lock.ID)
	}
	if err != nil {
		return outcomeSkipped, err
	}
	if b.LockID == nil || *b.LockID != lock.ID {
		return outcomeReleased, s.locks.ReleaseLock(ctx, lock.ID)
	}
	if !b.Status.HoldsInventoryLock() {
		return outcomeSkipped, nil
	}

	_, err = s.bookings.Transition(ctx, b.ID, domain.StatusExpired, ReasonTimeout, domain.SystemActor())
	if errors.Is(err, domain.ErrInvalidTransition) {
		// the booking moved on between the read and the transition
		return outcomeSkipped, nil
	}
	if err != nil {
		return outcomeSkipped, err
	}
	return outcomeExpired, nil
}
