package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"triggerpay/internal/attest"
	"triggerpay/internal/payout"
	"triggerpay/internal/trigger"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError maps domain errors onto HTTP statuses.
func WriteError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, trigger.ErrInvalid):
		WriteErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
	case errors.Is(err, payout.ErrUnsupportedChain):
		WriteErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
	case errors.Is(err, trigger.ErrForbidden):
		WriteErrorCode(c, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, trigger.ErrNotFound):
		WriteErrorCode(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, trigger.ErrNotActive), errors.Is(err, trigger.ErrNotExpired):
		WriteErrorCode(c, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, attest.ErrNotInitialized),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, errUnavailable):
		WriteErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
	default:
		WriteErrorCode(c, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func WriteErrorCode(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: message})
}

var errUnavailable = errors.New("dependency unavailable")
