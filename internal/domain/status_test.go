package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allowedEdges = map[BookingStatus][]BookingStatus{
	StatusNone:          {StatusInitiated},
	StatusInitiated:     {StatusReserved, StatusExpired, StatusCancelled},
	StatusReserved:      {StatusPaid, StatusExpired, StatusCancelled},
	StatusPaid:          {StatusTicketed, StatusPaymentFailed, StatusCancelled},
	StatusTicketed:      {StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusCheckedIn:     {StatusBoarded, StatusNoShow},
	StatusBoarded:       {StatusFlown},
	StatusExpired:       {StatusReserved},
	StatusPaymentFailed: {StatusReserved, StatusCancelled},
	StatusCancelled:     {StatusRefunded},
	StatusFlown:         {},
	StatusRefunded:      {},
	StatusNoShow:        {},
}

func TestCanTransition_EveryPair(t *testing.T) {
	origins := append([]BookingStatus{StatusNone}, AllStatuses()...)
	targets := append([]BookingStatus{StatusNone, BookingStatus("bogus")}, AllStatuses()...)

	for _, from := range origins {
		allowed, ok := allowedEdges[from]
		require.True(t, ok, "missing expectation for %s", from)
		for _, to := range targets {
			want := false
			for _, a := range allowed {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransition_SelfTransitionsRejected(t *testing.T) {
	for _, s := range AllStatuses() {
		assert.False(t, CanTransition(s, s), s.String())
	}
}

func TestCanTransition_TerminalStatesHaveNoExit(t *testing.T) {
	for _, from := range AllStatuses() {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range AllStatuses() {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransition_UnknownOriginRejected(t *testing.T) {
	assert.False(t, CanTransition(BookingStatus("PENDING"), StatusReserved))
}

func TestIsTerminal(t *testing.T) {
	terminal := map[BookingStatus]bool{StatusFlown: true, StatusRefunded: true, StatusNoShow: true}
	for _, s := range AllStatuses() {
		assert.Equal(t, terminal[s], s.IsTerminal(), s.String())
	}
}

func TestParseBookingStatus(t *testing.T) {
	s, err := ParseBookingStatus("checked_in")
	require.NoError(t, err)
	assert.Equal(t, StatusCheckedIn, s)

	_, err = ParseBookingStatus("CONFIRMED")
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = ParseBookingStatus("")
	assert.Error(t, err)
}

func TestParseCabinClass(t *testing.T) {
	c, err := ParseCabinClass("business")
	require.NoError(t, err)
	assert.Equal(t, CabinBusiness, c)

	_, err = ParseCabinClass("cargo")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestStatusNoneString(t *testing.T) {
	assert.Equal(t, "none", StatusNone.String())
	assert.Equal(t, "paid", StatusPaid.String())
}
