package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/uxone/internal/domain/entity"
)

// statusFor maps a service error to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrAlreadyFinalized),
		errors.Is(err, entity.ErrConcurrentModification),
		errors.Is(err, entity.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, entity.ErrSequenceExhausted),
		errors.Is(err, entity.ErrStorageBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error envelope. Internal errors are logged and masked.
func (h *Handlers) respondError(c *gin.Context, op string, err error) {
	status := statusFor(err)
	resp := Response{Success: false, Error: err.Error()}

	if errors.Is(err, entity.ErrConcurrentModification) || status == http.StatusServiceUnavailable {
		resp.Retryable = true
		c.Header("Retry-After", "1")
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "operation", op, "path", c.FullPath(), "error", err)
		resp.Error = op + " failed"
	}

	c.JSON(status, resp)
}
