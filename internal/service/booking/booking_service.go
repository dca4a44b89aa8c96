package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Domenick1991/bookingflow/internal/clock"
	"github.com/Domenick1991/bookingflow/internal/domain"
	"github.com/Domenick1991/bookingflow/internal/kafka"
	"github.com/Domenick1991/bookingflow/internal/keylock"
	"github.com/Domenick1991/bookingflow/internal/repository"
	"github.com/Domenick1991/bookingflow/internal/service/inventory"
	"github.com/sirupsen/logrus"
)

const (
	maxCodeAttempts = 5
	defaultCurrency = "USD"

	reasonCreated       = "Booking created"
	reasonSeatsHeld     = "Seats held for payment"
	reasonPaid          = "Payment confirmed"
	reasonPaymentFailed = "Payment failed"
	reasonCancelled     = "Cancelled"
)

type BookingUseCase interface {
	CreateBooking(ctx context.Context, input CreateBookingInput) (*CreateBookingResult, error)
	ConfirmPayment(ctx context.Context, bookingID int64, paymentReference string) (*domain.Booking, error)
	CancelBooking(ctx context.Context, bookingID int64, reason string, actor domain.Actor) (*domain.Booking, error)
	ReportPaymentFailure(ctx context.Context, bookingID int64, reason string) (*domain.Booking, error)
	Transition(ctx context.Context, bookingID int64, to domain.BookingStatus, reason string, actor domain.Actor) (*domain.Booking, error)
	GetBooking(ctx context.Context, bookingID int64) (*domain.Booking, error)
	GetByReference(ctx context.Context, reference string) (*domain.Booking, error)
	GetStatus(ctx context.Context, bookingID int64) (domain.BookingStatus, error)
	GetHistory(ctx context.Context, bookingID int64) ([]domain.StatusHistoryRecord, error)
}

// Locker serializes work on one booking. Implementations: keylock.Map for a
// single process, cache.RedisCache across processes.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type Inventory interface {
	CreateLock(ctx context.Context, input inventory.CreateLockInput) (*domain.InventoryLock, error)
	ReleaseLock(ctx context.Context, lockID string) error
	ConvertToConfirmed(ctx context.Context, lockID string) error
	ReturnConfirmed(ctx context.Context, lockID string) error
}

type History interface {
	Append(ctx context.Context, rec *domain.StatusHistoryRecord) error
	List(ctx context.Context, bookingID int64) ([]domain.StatusHistoryRecord, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type CreateBookingInput struct {
	FlightID    int64             `json:"flight_id"`
	CabinClass  domain.CabinClass `json:"cabin_class"`
	Seats       int               `json:"seats"`
	Passengers  int               `json:"passengers"`
	TotalAmount int64             `json:"total_amount"`
	Currency    string            `json:"currency"`
	UserID      *int64            `json:"user_id,omitempty"`
	SessionID   string            `json:"session_id"`
}

type CreateBookingResult struct {
	Booking   *domain.Booking
	BookingID int64
	LockID    string
	ExpiresAt time.Time
}

// BookingService is the booking state machine. Every status change goes
// through apply, which validates the edge, runs its inventory side effect,
// writes the booking and appends one history record in a single transaction.
type BookingService struct {
	tx        repository.TxManager
	bookings  repository.BookingRepository
	inventory Inventory
	history   History
	locker    Locker
	clock     clock.Clock
	log       logrus.FieldLogger

	producer     Producer
	bookingTopic string
	refundsTopic string

	holdTTL         time.Duration
	defaultCurrency string
	codes           codeGenerator
}

type BookingServiceOption func(*BookingService)

func WithLocker(l Locker) BookingServiceOption {
	return func(s *BookingService) {
		if l != nil {
			s.locker = l
		}
	}
}

func WithProducer(p Producer, bookingTopic string) BookingServiceOption {
	return func(s *BookingService) {
		s.producer = p
		s.bookingTopic = bookingTopic
	}
}

func WithRefundsTopic(topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.refundsTopic = topic
	}
}

func WithClock(c clock.Clock) BookingServiceOption {
	return func(s *BookingService) {
		s.clock = c
	}
}

func WithLogger(log logrus.FieldLogger) BookingServiceOption {
	return func(s *BookingService) {
		s.log = log
	}
}

// WithHoldTTL sets the hold TTL requested for new locks; zero leaves the
// choice to the inventory manager.
func WithHoldTTL(d time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		s.holdTTL = d
	}
}

func WithDefaultCurrency(currency string) BookingServiceOption {
	return func(s *BookingService) {
		if currency != "" {
			s.defaultCurrency = strings.ToUpper(currency)
		}
	}
}

func NewBookingService(
	tx repository.TxManager,
	bookings repository.BookingRepository,
	inv Inventory,
	history History,
	opts ...BookingServiceOption,
) *BookingService {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	service := &BookingService{
		tx:              tx,
		bookings:        bookings,
		inventory:       inv,
		history:         history,
		locker:          keylock.New(),
		clock:           clock.Real{},
		log:             discard,
		defaultCurrency: defaultCurrency,
		codes:           randomCodes,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// CreateBooking inserts the booking and holds its seats in one transaction.
// When the hold cannot be granted nothing is persisted.
func (s *BookingService) CreateBooking(ctx context.Context, input CreateBookingInput) (*CreateBookingResult, error) {
	if err := s.normalize(&input); err != nil {
		return nil, err
	}
	actor := domain.SystemActor()
	if input.UserID != nil {
		actor = domain.UserActor(*input.UserID)
	}

	var (
		booking *domain.Booking
		events  []kafka.BookingEvent
		err     error
	)
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		booking, events, err = s.createOnce(ctx, input, actor)
		if !errors.Is(err, domain.ErrDuplicateReference) {
			break
		}
		s.log.WithField("attempt", attempt).Warn("booking code collision, retrying")
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events)
	s.log.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"reference":  booking.Reference,
		"flight_id":  booking.FlightID,
		"cabin":      booking.CabinClass,
		"seats":      booking.Seats,
	}).Info("booking created")

	return &CreateBookingResult{
		Booking:   booking,
		BookingID: booking.ID,
		LockID:    *booking.LockID,
		ExpiresAt: *booking.ExpiresAt,
	}, nil
}

func (s *BookingService) createOnce(ctx context.Context, input CreateBookingInput, actor domain.Actor) (*domain.Booking, []kafka.BookingEvent, error) {
	reference, pnr, err := s.codes()
	if err != nil {
		return nil, nil, err
	}

	var (
		booking *domain.Booking
		events  []kafka.BookingEvent
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		now := s.clock.Now()
		booking = &domain.Booking{
			Reference:          reference,
			PNR:                pnr,
			FlightID:           input.FlightID,
			CabinClass:         input.CabinClass,
			Seats:              input.Seats,
			NumberOfPassengers: input.Passengers,
			TotalAmount:        input.TotalAmount,
			Currency:           input.Currency,
			UserID:             input.UserID,
			SessionID:          input.SessionID,
			Status:             domain.StatusInitiated,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := s.bookings.Create(ctx, booking); err != nil {
			return err
		}
		err := s.history.Append(ctx, &domain.StatusHistoryRecord{
			BookingID: booking.ID,
			OldStatus: domain.StatusNone,
			NewStatus: domain.StatusInitiated,
			Reason:    reasonCreated,
			Actor:     actor,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
		events = append(events, s.event(booking, domain.StatusNone, reasonCreated, actor, now))

		ev, err := s.apply(ctx, booking, change{to: domain.StatusReserved, reason: reasonSeatsHeld, actor: actor})
		if err != nil {
			return err
		}
		events = append(events, ev)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return booking, events, nil
}

// ConfirmPayment moves a reserved booking to paid. Repeating the call with
// the reference that already paid the booking returns it unchanged.
func (s *BookingService) ConfirmPayment(ctx context.Context, bookingID int64, paymentReference string) (*domain.Booking, error) {
	paymentReference = strings.TrimSpace(paymentReference)
	if paymentReference == "" {
		return nil, fmt.Errorf("%w: payment reference is required", domain.ErrValidation)
	}
	return s.run(ctx, bookingID, change{
		to:               domain.StatusPaid,
		reason:           reasonPaid,
		actor:            domain.SystemActor(),
		paymentReference: paymentReference,
		alreadyDone: func(b *domain.Booking) bool {
			return b.Status == domain.StatusPaid && b.PaymentReference != nil && *b.PaymentReference == paymentReference
		},
	})
}

func (s *BookingService) CancelBooking(ctx context.Context, bookingID int64, reason string, actor domain.Actor) (*domain.Booking, error) {
	if strings.TrimSpace(reason) == "" {
		reason = reasonCancelled
	}
	return s.Transition(ctx, bookingID, domain.StatusCancelled, reason, actor)
}

func (s *BookingService) ReportPaymentFailure(ctx context.Context, bookingID int64, reason string) (*domain.Booking, error) {
	if strings.TrimSpace(reason) == "" {
		reason = reasonPaymentFailed
	}
	return s.Transition(ctx, bookingID, domain.StatusPaymentFailed, reason, domain.SystemActor())
}

// Transition applies one edge of the lifecycle. Calls for the same booking
// are serialized; the loser of a race sees the winner's status and gets a
// *domain.TransitionError if its edge is no longer valid. A legal move to
// paid still needs ConfirmPayment, which carries the payment reference.
func (s *BookingService) Transition(ctx context.Context, bookingID int64, to domain.BookingStatus, reason string, actor domain.Actor) (*domain.Booking, error) {
	return s.run(ctx, bookingID, change{to: to, reason: reason, actor: actor})
}

func (s *BookingService) GetBooking(ctx context.Context, bookingID int64) (*domain.Booking, error) {
	return s.bookings.GetByID(ctx, bookingID)
}

func (s *BookingService) GetByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	return s.bookings.GetByReference(ctx, strings.ToUpper(strings.TrimSpace(reference)))
}

func (s *BookingService) GetStatus(ctx context.Context, bookingID int64) (domain.BookingStatus, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return domain.StatusNone, err
	}
	return b.Status, nil
}

func (s *BookingService) GetHistory(ctx context.Context, bookingID int64) ([]domain.StatusHistoryRecord, error) {
	if _, err := s.bookings.GetByID(ctx, bookingID); err != nil {
		return nil, err
	}
	return s.history.List(ctx, bookingID)
}

type change struct {
	to               domain.BookingStatus
	reason           string
	actor            domain.Actor
	paymentReference string
	// alreadyDone reports that the booking is already where this change
	// would put it, turning a repeat into a no-op.
	alreadyDone func(b *domain.Booking) bool
}

func (s *BookingService) run(ctx context.Context, bookingID int64, c change) (*domain.Booking, error) {
	if !c.to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, c.to)
	}
	if !c.actor.Valid() {
		return nil, fmt.Errorf("%w: invalid actor", domain.ErrValidation)
	}

	unlock, err := s.locker.Lock(ctx, lockKey(bookingID))
	if err != nil {
		return nil, fmt.Errorf("lock booking %d: %w", bookingID, err)
	}
	defer unlock()

	var (
		booking *domain.Booking
		ev      *kafka.BookingEvent
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		b, err := s.bookings.GetByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		booking = b
		if c.alreadyDone != nil && c.alreadyDone(b) {
			return nil
		}
		e, err := s.apply(ctx, b, c)
		if err != nil {
			return err
		}
		ev = &e
		return nil
	})
	if err != nil {
		return nil, err
	}

	if ev != nil {
		s.publish(ctx, []kafka.BookingEvent{*ev})
		s.log.WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"from":       ev.FromStatus,
			"to":         ev.ToStatus,
			"actor":      c.actor.String(),
		}).Info("booking transitioned")
	}
	return booking, nil
}

// apply must run inside a transaction that holds the booking row lock.
func (s *BookingService) apply(ctx context.Context, b *domain.Booking, c change) (kafka.BookingEvent, error) {
	from := b.Status
	if !domain.CanTransition(from, c.to) {
		return kafka.BookingEvent{}, &domain.TransitionError{BookingID: b.ID, From: from, To: c.to}
	}
	if err := s.sideEffects(ctx, b, from, c); err != nil {
		return kafka.BookingEvent{}, err
	}

	now := s.clock.Now()
	b.Status = c.to
	b.UpdatedAt = now
	if err := s.bookings.Update(ctx, b); err != nil {
		return kafka.BookingEvent{}, err
	}
	err := s.history.Append(ctx, &domain.StatusHistoryRecord{
		BookingID: b.ID,
		OldStatus: from,
		NewStatus: c.to,
		Reason:    c.reason,
		Actor:     c.actor,
		CreatedAt: now,
	})
	if err != nil {
		return kafka.BookingEvent{}, err
	}
	return s.event(b, from, c.reason, c.actor, now), nil
}

func (s *BookingService) sideEffects(ctx context.Context, b *domain.Booking, from domain.BookingStatus, c change) error {
	switch {
	case c.to == domain.StatusReserved:
		sessionID := ""
		if from == domain.StatusInitiated {
			sessionID = b.SessionID
		}
		lock, err := s.inventory.CreateLock(ctx, inventory.CreateLockInput{
			FlightID:   b.FlightID,
			CabinClass: b.CabinClass,
			Seats:      b.Seats,
			BookingID:  b.ID,
			SessionID:  sessionID,
			TTL:        s.holdTTL,
		})
		if err != nil {
			return err
		}
		lockID, expiresAt := lock.ID, lock.ExpiresAt
		b.LockID = &lockID
		b.ExpiresAt = &expiresAt

	case c.to == domain.StatusPaid:
		if c.paymentReference == "" {
			return fmt.Errorf("%w: booking %d is paid through payment confirmation", domain.ErrValidation, b.ID)
		}
		if b.LockID == nil {
			return fmt.Errorf("booking %d has no seat hold: %w", b.ID, domain.ErrLockExpired)
		}
		if err := s.inventory.ConvertToConfirmed(ctx, *b.LockID); err != nil {
			return err
		}
		ref := c.paymentReference
		b.PaymentReference = &ref
		b.ExpiresAt = nil

	case from == domain.StatusInitiated || from == domain.StatusReserved:
		// to expired or cancelled
		if b.LockID != nil {
			if err := s.inventory.ReleaseLock(ctx, *b.LockID); err != nil {
				return err
			}
		}
		b.ExpiresAt = nil

	case (from == domain.StatusPaid || from == domain.StatusTicketed) && c.to == domain.StatusCancelled:
		if err := s.returnSeats(ctx, b); err != nil {
			return err
		}
		b.RefundEligible = true

	case from == domain.StatusPaid && c.to == domain.StatusPaymentFailed:
		return s.returnSeats(ctx, b)
	}
	return nil
}

func (s *BookingService) returnSeats(ctx context.Context, b *domain.Booking) error {
	if b.LockID == nil {
		return nil
	}
	return s.inventory.ReturnConfirmed(ctx, *b.LockID)
}

func (s *BookingService) normalize(input *CreateBookingInput) error {
	if input.Seats < 1 {
		return fmt.Errorf("%w: seats must be at least 1", domain.ErrValidation)
	}
	if input.Passengers == 0 {
		input.Passengers = input.Seats
	}
	if input.Passengers < 1 {
		return fmt.Errorf("%w: passengers must be at least 1", domain.ErrValidation)
	}
	if !input.CabinClass.Valid() {
		return fmt.Errorf("%w: unknown cabin class %q", domain.ErrValidation, input.CabinClass)
	}
	if input.FlightID <= 0 {
		return fmt.Errorf("%w: flight id is required", domain.ErrValidation)
	}
	if input.TotalAmount < 0 {
		return fmt.Errorf("%w: total amount must not be negative", domain.ErrValidation)
	}
	if input.UserID != nil && *input.UserID <= 0 {
		return fmt.Errorf("%w: user id must be positive", domain.ErrValidation)
	}
	input.Currency = strings.ToUpper(strings.TrimSpace(input.Currency))
	if input.Currency == "" {
		input.Currency = s.defaultCurrency
	}
	if len(input.Currency) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter ISO code", domain.ErrValidation)
	}
	return nil
}

func (s *BookingService) event(b *domain.Booking, from domain.BookingStatus, reason string, actor domain.Actor, at time.Time) kafka.BookingEvent {
	ev := kafka.BookingEvent{
		Type:           kafka.EventStatusChanged,
		BookingID:      b.ID,
		Reference:      b.Reference,
		PNR:            b.PNR,
		FlightID:       b.FlightID,
		CabinClass:     string(b.CabinClass),
		Seats:          b.Seats,
		TotalAmount:    b.TotalAmount,
		Currency:       b.Currency,
		FromStatus:     string(from),
		ToStatus:       string(b.Status),
		Reason:         reason,
		ActorType:      string(actor.Type()),
		RefundEligible: b.RefundEligible && b.Status == domain.StatusCancelled,
		OccurredAt:     at,
	}
	if id, ok := actor.ID(); ok {
		ev.ActorID = &id
	}
	return ev
}

// publish runs after commit. A lost event never undoes a committed transition.
func (s *BookingService) publish(ctx context.Context, events []kafka.BookingEvent) {
	if s.producer == nil {
		return
	}
	for _, ev := range events {
		log := s.log.WithFields(logrus.Fields{"booking_id": ev.BookingID, "to": ev.ToStatus})
		if s.bookingTopic != "" {
			if err := s.producer.Publish(ctx, s.bookingTopic, ev.Reference, ev); err != nil {
				log.WithError(err).Warn("failed to publish booking event")
			}
		}
		if ev.RefundEligible && s.refundsTopic != "" {
			refund := ev
			refund.Type = kafka.EventRefundEligible
			if err := s.producer.Publish(ctx, s.refundsTopic, ev.Reference, refund); err != nil {
				log.WithError(err).Warn("failed to publish refund event")
			}
		}
	}
}

func lockKey(bookingID int64) string {
	return fmt.Sprintf("booking:%d", bookingID)
}

var _ BookingUseCase = (*BookingService)(nil)
