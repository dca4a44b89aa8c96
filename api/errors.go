package api

import (
	"errors"
	"net/http"

	"github.com/Domenick1991/bookingflow/internal/domain"
	"github.com/gin-gonic/gin"
)

const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeCapacityExceeded  = "CAPACITY_EXCEEDED"
	CodeLockExpired       = "LOCK_EXPIRED"
	CodeInternal          = "INTERNAL"
)

type errorResponse struct {
	Error           string `json:"error"`
	Code            string `json:"code"`
	CurrentStatus   string `json:"current_status,omitempty"`
	AttemptedStatus string `json:"attempted_status,omitempty"`
}

func writeError(c *gin.Context, err error) {
	var te *domain.TransitionError
	switch {
	case errors.As(err, &te):
		c.JSON(http.StatusConflict, errorResponse{
			Error:           err.Error(),
			Code:            CodeInvalidTransition,
			CurrentStatus:   te.From.String(),
			AttemptedStatus: te.To.String(),
		})
	case errors.Is(err, domain.ErrCapacityExceeded):
		c.JSON(http.StatusConflict, errorResponse{Error: "no seats available, try again", Code: CodeCapacityExceeded})
	case errors.Is(err, domain.ErrLockExpired):
		c.JSON(http.StatusGone, errorResponse{Error: err.Error(), Code: CodeLockExpired})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error(), Code: CodeNotFound})
	case errors.Is(err, domain.ErrValidation):
		badRequest(c, err.Error())
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error", Code: CodeInternal})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: msg, Code: CodeValidation})
}
