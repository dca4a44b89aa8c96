package api

import (
	"fmt"
	"strconv"

	"github.com/Domenick1991/bookingflow/internal/domain"
	"github.com/gin-gonic/gin"
)

// Identity headers are set by the gateway after authentication.
const (
	HeaderUserID  = "X-User-ID"
	HeaderAdminID = "X-Admin-ID"
)

func adminActor(c *gin.Context) (domain.Actor, error) {
	id, err := headerID(c, HeaderAdminID)
	if err != nil {
		return domain.Actor{}, err
	}
	return domain.AdminActor(id), nil
}

// requestActor prefers an admin identity and falls back to the user.
func requestActor(c *gin.Context) (domain.Actor, error) {
	if c.GetHeader(HeaderAdminID) != "" {
		return adminActor(c)
	}
	id, err := headerID(c, HeaderUserID)
	if err != nil {
		return domain.Actor{}, err
	}
	return domain.UserActor(id), nil
}

func optionalUserID(c *gin.Context) (*int64, error) {
	if c.GetHeader(HeaderUserID) == "" {
		return nil, nil
	}
	id, err := headerID(c, HeaderUserID)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func headerID(c *gin.Context, header string) (int64, error) {
	raw := c.GetHeader(header)
	if raw == "" {
		return 0, fmt.Errorf("%w: %s header is required", domain.ErrValidation, header)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", domain.ErrValidation, header)
	}
	return id, nil
}

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", domain.ErrValidation, name)
	}
	return id, nil
}
