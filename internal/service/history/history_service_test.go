package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/bookingflow/internal/clock"
	"github.com/Domenick1991/bookingflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockHistoryRepository struct {
	mock.Mock
}

func (m *MockHistoryRepository) Append(ctx context.Context, record *domain.StatusHistoryRecord) error {
	return m.Called(ctx, record).Error(0)
}

func (m *MockHistoryRepository) ListByBooking(ctx context.Context, bookingID int64) ([]domain.StatusHistoryRecord, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.StatusHistoryRecord), args.Error(1)
}

var now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func TestLedger_Append(t *testing.T) {
	repo := &MockHistoryRepository{}
	ledger := NewLedger(repo, clock.NewFake(now))
	ctx := context.Background()

	rec := &domain.StatusHistoryRecord{
		BookingID: 1,
		OldStatus: domain.StatusInitiated,
		NewStatus: domain.StatusReserved,
		Actor:     domain.UserActor(9),
	}
	repo.On("Append", ctx, rec).Return(nil).Once()

	require.NoError(t, ledger.Append(ctx, rec))
	assert.Equal(t, now, rec.CreatedAt)
	repo.AssertExpectations(t)
}

func TestLedger_AppendRejects(t *testing.T) {
	testCases := []struct {
		name    string
		rec     *domain.StatusHistoryRecord
		wantErr error
	}{
		{
			name:    "nil record",
			rec:     nil,
			wantErr: domain.ErrValidation,
		},
		{
			name:    "zero actor",
			rec:     &domain.StatusHistoryRecord{BookingID: 1, NewStatus: domain.StatusInitiated},
			wantErr: domain.ErrValidation,
		},
		{
			name: "edge outside the table",
			rec: &domain.StatusHistoryRecord{
				BookingID: 1,
				OldStatus: domain.StatusInitiated,
				NewStatus: domain.StatusFlown,
				Actor:     domain.SystemActor(),
			},
			wantErr: domain.ErrInvalidTransition,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &MockHistoryRepository{}
			ledger := NewLedger(repo, clock.NewFake(now))

			err := ledger.Append(context.Background(), tc.rec)
			assert.ErrorIs(t, err, tc.wantErr)
			repo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
		})
	}
}

func TestLedger_AppendWrapsRepositoryError(t *testing.T) {
	repo := &MockHistoryRepository{}
	ledger := NewLedger(repo, nil)
	boom := errors.New("connection reset")

	repo.On("Append", mock.Anything, mock.Anything).Return(boom)

	err := ledger.Append(context.Background(), &domain.StatusHistoryRecord{
		BookingID: 3,
		NewStatus: domain.StatusInitiated,
		Actor:     domain.SystemActor(),
	})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "booking 3")
}

func TestLedger_CurrentStatus(t *testing.T) {
	repo := &MockHistoryRepository{}
	ledger := NewLedger(repo, clock.NewFake(now))
	ctx := context.Background()

	repo.On("ListByBooking", ctx, int64(1)).Return([]domain.StatusHistoryRecord{
		{ID: 1, BookingID: 1, NewStatus: domain.StatusInitiated, Actor: domain.SystemActor()},
		{ID: 2, BookingID: 1, OldStatus: domain.StatusInitiated, NewStatus: domain.StatusReserved, Actor: domain.SystemActor()},
	}, nil)
	repo.On("ListByBooking", ctx, int64(2)).Return([]domain.StatusHistoryRecord{}, nil)
	repo.On("ListByBooking", ctx, int64(3)).Return(nil, errors.New("db down"))

	status, err := ledger.CurrentStatus(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReserved, status)

	_, err = ledger.CurrentStatus(ctx, 2)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = ledger.CurrentStatus(ctx, 3)
	assert.EqualError(t, err, "db down")

	records, err := ledger.List(ctx, 1)
	require.NoError(t, err)
	assert.NoError(t, domain.ValidateTrail(records))
}
