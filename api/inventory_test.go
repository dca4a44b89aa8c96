package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Domenick1991/bookingflow/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockInventoryService struct {
	mock.Mock
}

func (m *MockInventoryService) Availability(ctx context.Context, flightID int64, cabin domain.CabinClass) (*domain.Availability, error) {
	args := m.Called(ctx, flightID, cabin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Availability), args.Error(1)
}

func (m *MockInventoryService) SetCapacity(ctx context.Context, flightID int64, cabin domain.CabinClass, capacity int) (*domain.Availability, error) {
	args := m.Called(ctx, flightID, cabin, capacity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Availability), args.Error(1)
}

func (m *MockInventoryService) LocksByBooking(ctx context.Context, bookingID int64) ([]domain.InventoryLock, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.InventoryLock), args.Error(1)
}

func TestInventoryHandler_availability(t *testing.T) {
	mockService := &MockInventoryService{}
	handler := NewInventoryHandler(mockService)

	c, w := newContext("GET", "/api/v1/inventory/77/economy", nil)
	c.Params = gin.Params{{Key: "flightId", Value: "77"}, {Key: "cabin", Value: "economy"}}

	mockService.On("Availability", c.Request.Context(), int64(77), domain.CabinEconomy).Return(&domain.Availability{
		FlightID: 77, CabinClass: domain.CabinEconomy, Capacity: 180, HeldSeats: 4, ConfirmedSeats: 100, Available: 76,
	}, nil)

	handler.availability(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response domain.Availability
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 76, response.Available)
	mockService.AssertExpectations(t)
}

func TestInventoryHandler_availabilityBadCabin(t *testing.T) {
	handler := NewInventoryHandler(&MockInventoryService{})

	c, w := newContext("GET", "/api/v1/inventory/77/cargo", nil)
	c.Params = gin.Params{{Key: "flightId", Value: "77"}, {Key: "cabin", Value: "cargo"}}

	handler.availability(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInventoryHandler_setCapacity(t *testing.T) {
	mockService := &MockInventoryService{}
	handler := NewInventoryHandler(mockService)

	c, w := newContext("PUT", "/api/v1/admin/inventory/77/first", map[string]int{"capacity": 0})
	c.Params = gin.Params{{Key: "flightId", Value: "77"}, {Key: "cabin", Value: "first"}}
	c.Request.Header.Set(HeaderAdminID, "7")

	mockService.On("SetCapacity", c.Request.Context(), int64(77), domain.CabinFirst, 0).
		Return(&domain.Availability{FlightID: 77, CabinClass: domain.CabinFirst}, nil)

	handler.setCapacity(c)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestInventoryHandler_setCapacityRejects(t *testing.T) {
	t.Run("no admin", func(t *testing.T) {
		mockService := &MockInventoryService{}
		handler := NewInventoryHandler(mockService)
		c, w := newContext("PUT", "/api/v1/admin/inventory/77/first", map[string]int{"capacity": 3})
		c.Params = gin.Params{{Key: "flightId", Value: "77"}, {Key: "cabin", Value: "first"}}

		handler.setCapacity(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockService.AssertNotCalled(t, "SetCapacity", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing capacity", func(t *testing.T) {
		handler := NewInventoryHandler(&MockInventoryService{})
		c, w := newContext("PUT", "/api/v1/admin/inventory/77/first", map[string]int{})
		c.Params = gin.Params{{Key: "flightId", Value: "77"}, {Key: "cabin", Value: "first"}}
		c.Request.Header.Set(HeaderAdminID, "7")

		handler.setCapacity(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("shrinking below seats in use", func(t *testing.T) {
		mockService := &MockInventoryService{}
		handler := NewInventoryHandler(mockService)
		c, w := newContext("PUT", "/api/v1/admin/inventory/77/first", map[string]int{"capacity": 1})
		c.Params = gin.Params{{Key: "flightId", Value: "77"}, {Key: "cabin", Value: "first"}}
		c.Request.Header.Set(HeaderAdminID, "7")
		mockService.On("SetCapacity", mock.Anything, int64(77), domain.CabinFirst, 1).Return(nil, domain.ErrValidation)

		handler.setCapacity(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestInventoryHandler_locks(t *testing.T) {
	mockService := &MockInventoryService{}
	handler := NewInventoryHandler(mockService)

	c, w := newContext("GET", "/api/v1/admin/bookings/3/locks", nil)
	c.Params = gin.Params{{Key: "id", Value: "3"}}
	c.Request.Header.Set(HeaderAdminID, "7")

	resolved := created.Add(5 * time.Minute)
	mockService.On("LocksByBooking", c.Request.Context(), int64(3)).Return([]domain.InventoryLock{
		{ID: "a", FlightID: 77, CabinClass: domain.CabinEconomy, Seats: 1, BookingID: 3, State: domain.LockReleased,
			ExpiresAt: created.Add(15 * time.Minute), CreatedAt: created, ResolvedAt: &resolved},
		{ID: "b", FlightID: 77, CabinClass: domain.CabinEconomy, Seats: 1, BookingID: 3, State: domain.LockHeld,
			ExpiresAt: created.Add(30 * time.Minute), CreatedAt: created.Add(15 * time.Minute)},
	}, nil)

	handler.locks(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response []lockResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response, 2)
	assert.Equal(t, "released", response[0].State)
	assert.Equal(t, "2026-04-02T09:35:00Z", response[0].ResolvedAt)
	assert.Empty(t, response[1].ResolvedAt)
}

func TestRouter_swaggerDisabledByDefault(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(NewBookingHandler(&MockBookingUseCase{}), NewInventoryHandler(&MockInventoryService{}), RouterConfig{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/swagger/index.html", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_bookingLocksMountedUnderAdminBookings(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockService := &MockInventoryService{}
	router := NewRouter(NewBookingHandler(&MockBookingUseCase{}), NewInventoryHandler(mockService), RouterConfig{})
	mockService.On("LocksByBooking", mock.Anything, int64(3)).Return([]domain.InventoryLock{}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/admin/bookings/3/locks", nil)
	req.Header.Set(HeaderAdminID, "7")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/api/v1/admin/inventory/3/locks", nil)
	req.Header.Set(HeaderAdminID, "7")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	mockService.AssertNumberOfCalls(t, "LocksByBooking", 1)
}
