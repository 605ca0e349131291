package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"smartattend/internal/attendance"
	"smartattend/internal/enroll"
	"smartattend/internal/profile"
)

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	var verr *profile.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, enroll.ErrNoFaceDetected), errors.Is(err, enroll.ErrMultipleFaces):
		return http.StatusBadRequest
	case errors.Is(err, attendance.ErrRecordNotFound), errors.Is(err, profile.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrNotBootstrapped):
		return http.StatusConflict
	case errors.Is(err, enroll.ErrDeviceDenied):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg})
}
