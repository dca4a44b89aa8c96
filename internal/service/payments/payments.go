// Package payments applies payment gateway results to bookings.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/Domenick1991/bookingflow/internal/domain"
	"github.com/Domenick1991/bookingflow/internal/kafka"
	"github.com/sirupsen/logrus"
	kafkaGo "github.com/segmentio/kafka-go"
)

type Bookings interface {
	GetBooking(ctx context.Context, bookingID int64) (*domain.Booking, error)
	ConfirmPayment(ctx context.Context, bookingID int64, paymentReference string) (*domain.Booking, error)
	ReportPaymentFailure(ctx context.Context, bookingID int64, reason string) (*domain.Booking, error)
}

type Handler struct {
	bookings Bookings
	log      logrus.FieldLogger
}

func NewHandler(bookings Bookings, log logrus.FieldLogger) *Handler {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Handler{bookings: bookings, log: log}
}

// HandleMessage decodes one payments topic message. Messages that can never
// succeed are logged and acknowledged; only infrastructure errors are
// returned, which stops the consumer before the offset is committed.
func (h *Handler) HandleMessage(ctx context.Context, msg kafkaGo.Message) error {
	var result kafka.PaymentResult
	if err := json.Unmarshal(msg.Value, &result); err != nil {
		h.log.WithError(err).WithField("offset", msg.Offset).Warn("dropping undecodable payment result")
		return nil
	}
	return h.Handle(ctx, result)
}

func (h *Handler) Handle(ctx context.Context, result kafka.PaymentResult) error {
	log := h.log.WithFields(logrus.Fields{
		"booking_id":        result.BookingID,
		"payment_reference": result.PaymentReference,
		"payment_status":    result.Status,
	})

	var err error
	switch result.Status {
	case kafka.PaymentSucceeded:
		_, err = h.bookings.ConfirmPayment(ctx, result.BookingID, result.PaymentReference)
	case kafka.PaymentFailed:
		err = h.fail(ctx, result, log)
	default:
		log.Warn("ignoring payment result with unknown status")
		return nil
	}

	if isRejection(err) {
		log.WithError(err).Warn("payment result rejected")
		return nil
	}
	if err != nil {
		return err
	}
	log.Info("payment result applied")
	return nil
}

// fail only touches paid bookings. A reserved booking whose payment failed
// keeps its hold so the customer can retry until it expires.
func (h *Handler) fail(ctx context.Context, result kafka.PaymentResult, log logrus.FieldLogger) error {
	b, err := h.bookings.GetBooking(ctx, result.BookingID)
	if err != nil {
		return err
	}
	if b.Status != domain.StatusPaid {
		log.WithField("status", b.Status).Info("payment failure ignored for unpaid booking")
		return nil
	}
	_, err = h.bookings.ReportPaymentFailure(ctx, result.BookingID, result.Reason)
	return err
}

func isRejection(err error) bool {
	return errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrLockExpired) ||
		errors.Is(err, domain.ErrCapacityExceeded)
}
