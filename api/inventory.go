package api

import (
	"context"
	"net/http"
	"time"

	"github.com/Domenick1991/bookingflow/internal/domain"
	"github.com/gin-gonic/gin"
)

type InventoryService interface {
	Availability(ctx context.Context, flightID int64, cabin domain.CabinClass) (*domain.Availability, error)
	SetCapacity(ctx context.Context, flightID int64, cabin domain.CabinClass, capacity int) (*domain.Availability, error)
	LocksByBooking(ctx context.Context, bookingID int64) ([]domain.InventoryLock, error)
}

type InventoryHandler struct {
	service InventoryService
}

type capacityRequest struct {
	Capacity *int `json:"capacity" binding:"required"`
}

type lockResponse struct {
	ID         string `json:"id"`
	FlightID   int64  `json:"flight_id"`
	CabinClass string `json:"cabin_class"`
	Seats      int    `json:"seats"`
	State      string `json:"state"`
	ExpiresAt  string `json:"expires_at"`
	CreatedAt  string `json:"created_at"`
	ResolvedAt string `json:"resolved_at,omitempty"`
}

func NewInventoryHandler(service InventoryService) *InventoryHandler {
	return &InventoryHandler{service: service}
}

func (h *InventoryHandler) Register(router *gin.RouterGroup) {
	router.GET("/:flightId/:cabin", h.availability)
}

func (h *InventoryHandler) RegisterAdmin(inventory, bookings *gin.RouterGroup) {
	inventory.PUT("/:flightId/:cabin", h.setCapacity)
	bookings.GET("/:id/locks", h.locks)
}

func (h *InventoryHandler) availability(c *gin.Context) {
	flightID, cabin, err := bucketParams(c)
	if err != nil {
		writeError(c, err)
		return
	}
	a, err := h.service.Availability(c.Request.Context(), flightID, cabin)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *InventoryHandler) setCapacity(c *gin.Context) {
	if _, err := adminActor(c); err != nil {
		writeError(c, err)
		return
	}
	flightID, cabin, err := bucketParams(c)
	if err != nil {
		writeError(c, err)
		return
	}
	var req capacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	a, err := h.service.SetCapacity(c.Request.Context(), flightID, cabin, *req.Capacity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *InventoryHandler) locks(c *gin.Context) {
	if _, err := adminActor(c); err != nil {
		writeError(c, err)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}
	locks, err := h.service.LocksByBooking(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]lockResponse, 0, len(locks))
	for _, l := range locks {
		item := lockResponse{
			ID:         l.ID,
			FlightID:   l.FlightID,
			CabinClass: string(l.CabinClass),
			Seats:      l.Seats,
			State:      string(l.State),
			ExpiresAt:  l.ExpiresAt.Format(time.RFC3339),
			CreatedAt:  l.CreatedAt.Format(time.RFC3339),
		}
		if l.ResolvedAt != nil {
			item.ResolvedAt = l.ResolvedAt.Format(time.RFC3339)
		}
		out = append(out, item)
	}
	c.JSON(http.StatusOK, out)
}

func bucketParams(c *gin.Context) (int64, domain.CabinClass, error) {
	flightID, err := pathID(c, "flightId")
	if err != nil {
		return 0, "", err
	}
	cabin, err := domain.ParseCabinClass(c.Param("cabin"))
	if err != nil {
		return 0, "", err
	}
	return flightID, cabin, nil
}
