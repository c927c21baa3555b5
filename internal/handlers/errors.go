package handlers

import (
	"errors"
	"net/http"

	"smokehouse/internal/configstore"
	"smokehouse/internal/flash"
	"smokehouse/internal/models"
	"smokehouse/internal/sensor"
	"smokehouse/internal/service"
	"smokehouse/internal/state"
	"smokehouse/internal/storage"

	"github.com/gin-gonic/gin"
)

const errInvalidBodyPref = "invalid body: "

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, state.ErrLockTimeout),
		errors.Is(err, flash.ErrNotMounted),
		errors.Is(err, flash.ErrBusy),
		errors.Is(err, flash.ErrNoDevice):
		return http.StatusServiceUnavailable
	case errors.Is(err, state.ErrNotIdle),
		errors.Is(err, state.ErrNotResumable),
		errors.Is(err, state.ErrSensorFault),
		errors.Is(err, state.ErrOverheatLatched),
		errors.Is(err, state.ErrDoorOpen),
		errors.Is(err, state.ErrNoProfile):
		return http.StatusConflict
	case errors.Is(err, storage.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrBadProfileName),
		errors.Is(err, storage.ErrFieldCount),
		errors.Is(err, storage.ErrBadNumber),
		errors.Is(err, configstore.ErrInvalidLength),
		errors.Is(err, models.ErrSameSensor),
		errors.Is(err, sensor.ErrBadIndex),
		errors.Is(err, service.ErrUnknownSource):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrEmptyProfile),
		errors.Is(err, sensor.ErrTooFewSensors):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// respondError reports err with the mapped status. Server errors keep the
// generic message, client errors expose the cause.
func (h *Handler) respondError(c *gin.Context, userMsg, logKey string, err error, kv ...interface{}) {
	code := statusFor(err)
	if code < http.StatusInternalServerError {
		userMsg = userMsg + ": " + err.Error()
	}
	h.logAndJSONError(c, code, userMsg, logKey, err, kv...)
}
