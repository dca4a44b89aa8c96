package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/bookingflow/internal/domain"
	"github.com/Domenick1991/bookingflow/internal/service/booking"
	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	service booking.BookingUseCase
}

type createBookingRequest struct {
	FlightID    int64  `json:"flight_id" binding:"required"`
	CabinClass  string `json:"cabin_class" binding:"required"`
	Seats       int    `json:"seats" binding:"required,min=1"`
	Passengers  int    `json:"passengers"`
	TotalAmount int64  `json:"total_amount"`
	Currency    string `json:"currency"`
	SessionID   string `json:"session_id"`
}

type paymentRequest struct {
	PaymentReference string `json:"payment_reference" binding:"required"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type transitionRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

type bookingResponse struct {
	ID               int64   `json:"id"`
	Reference        string  `json:"reference"`
	PNR              string  `json:"pnr"`
	FlightID         int64   `json:"flight_id"`
	CabinClass       string  `json:"cabin_class"`
	Seats            int     `json:"seats"`
	Passengers       int     `json:"passengers"`
	TotalAmount      int64   `json:"total_amount"`
	Currency         string  `json:"currency"`
	UserID           *int64  `json:"user_id,omitempty"`
	Status           string  `json:"status"`
	PaymentReference *string `json:"payment_reference,omitempty"`
	LockID           *string `json:"lock_id,omitempty"`
	ExpiresAt        string  `json:"expires_at,omitempty"`
	RefundEligible   bool    `json:"refund_eligible"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

type createBookingResponse struct {
	BookingID int64           `json:"booking_id"`
	LockID    string          `json:"lock_id"`
	ExpiresAt string          `json:"expires_at"`
	Booking   bookingResponse `json:"booking"`
}

type statusResponse struct {
	BookingID int64  `json:"booking_id"`
	Status    string `json:"status"`
}

type historyResponse struct {
	ID        int64  `json:"id"`
	OldStatus string `json:"old_status,omitempty"`
	NewStatus string `json:"new_status"`
	Reason    string `json:"reason,omitempty"`
	ActorType string `json:"actor_type"`
	ActorID   *int64 `json:"actor_id,omitempty"`
	CreatedAt string `json:"created_at"`
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

// Register mounts the customer routes on the bookings group.
func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.GET("/:id", h.get)
	router.GET("/reference/:ref", h.getByReference)
	router.GET("/:id/status", h.status)
	router.GET("/:id/history", h.history)
	router.POST("/:id/payment", h.confirmPayment)
	router.POST("/:id/cancel", h.cancel)
}

// RegisterAdmin mounts operator routes on the admin bookings group.
func (h *BookingHandler) RegisterAdmin(router *gin.RouterGroup) {
	router.POST("/:id/transitions", h.transition)
}

func (h *BookingHandler) create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	userID, err := optionalUserID(c)
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := h.service.CreateBooking(c.Request.Context(), booking.CreateBookingInput{
		FlightID:    req.FlightID,
		CabinClass:  domain.CabinClass(req.CabinClass),
		Seats:       req.Seats,
		Passengers:  req.Passengers,
		TotalAmount: req.TotalAmount,
		Currency:    req.Currency,
		UserID:      userID,
		SessionID:   req.SessionID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, createBookingResponse{
		BookingID: res.BookingID,
		LockID:    res.LockID,
		ExpiresAt: res.ExpiresAt.Format(time.RFC3339),
		Booking:   toBookingResponse(res.Booking),
	})
}

func (h *BookingHandler) get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}
	b, err := h.service.GetBooking(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) getByReference(c *gin.Context) {
	b, err := h.service.GetByReference(c.Request.Context(), c.Param("ref"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) status(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}
	st, err := h.service.GetStatus(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusResponse{BookingID: id, Status: string(st)})
}

func (h *BookingHandler) history(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}
	records, err := h.service.GetHistory(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]historyResponse, 0, len(records))
	for _, rec := range records {
		item := historyResponse{
			ID:        rec.ID,
			OldStatus: string(rec.OldStatus),
			NewStatus: string(rec.NewStatus),
			Reason:    rec.Reason,
			ActorType: string(rec.Actor.Type()),
			CreatedAt: rec.CreatedAt.Format(time.RFC3339),
		}
		if actorID, ok := rec.Actor.ID(); ok {
			item.ActorID = &actorID
		}
		out = append(out, item)
	}
	c.JSON(http.StatusOK, out)
}

func (h *BookingHandler) confirmPayment(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	b, err := h.service.ConfirmPayment(c.Request.Context(), id, req.PaymentReference)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) cancel(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}
	actor, err := requestActor(c)
	if err != nil {
		writeError(c, err)
		return
	}
	var req cancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	b, err := h.service.CancelBooking(c.Request.Context(), id, req.Reason, actor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) transition(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}
	actor, err := adminActor(c)
	if err != nil {
		writeError(c, err)
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	to, err := domain.ParseBookingStatus(req.Status)
	if err != nil {
		writeError(c, err)
		return
	}

	b, err := h.service.Transition(c.Request.Context(), id, to, req.Reason, actor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func toBookingResponse(b *domain.Booking) bookingResponse {
	resp := bookingResponse{
		ID:               b.ID,
		Reference:        b.Reference,
		PNR:              b.PNR,
		FlightID:         b.FlightID,
		CabinClass:       string(b.CabinClass),
		Seats:            b.Seats,
		Passengers:       b.NumberOfPassengers,
		TotalAmount:      b.TotalAmount,
		Currency:         b.Currency,
		UserID:           b.UserID,
		Status:           string(b.Status),
		PaymentReference: b.PaymentReference,
		LockID:           b.LockID,
		RefundEligible:   b.RefundEligible,
		CreatedAt:        b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        b.UpdatedAt.Format(time.RFC3339),
	}
	if b.ExpiresAt != nil {
		resp.ExpiresAt = b.ExpiresAt.Format(time.RFC3339)
	}
	return resp
}
