package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/invoice-ledger/internal/application/port"
	"github.com/garyjia/invoice-ledger/internal/domain/entity"
)

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrInvalidScope):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, entity.ErrIllegalTransition),
		errors.Is(err, entity.ErrInvoiceProtected),
		errors.Is(err, entity.ErrConcurrentUpdate):
		return http.StatusConflict
	case errors.Is(err, entity.ErrAllocationExhausted),
		errors.Is(err, port.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error envelope. Unmapped errors are logged and not echoed to the client.
func (h *Handlers) respondError(c *gin.Context, op string, err error) {
	status := statusFor(err)
	msg := err.Error()

	switch status {
	case http.StatusInternalServerError:
		h.logger.Error("Request failed", "op", op, "error", err)
		msg = "internal error"
	case http.StatusServiceUnavailable:
		h.logger.Error("Request failed", "op", op, "error", err)
		c.Header("Retry-After", "1")
	}

	c.JSON(status, Response{
		Success: false,
		Error:   msg,
	})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   msg,
	})
}
