package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/store"
	"rollcall/internal/validate"
)

func statusFor(err error) int {
	var (
		verr    *validate.ValidationError
		partial *attendance.PartialBatchError
		write   *attendance.StoreWriteError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, attendance.ErrEventNotFound),
		errors.Is(err, attendance.ErrRecordNotFound),
		errors.Is(err, attendance.ErrUnknownMember),
		errors.Is(err, store.ErrStageNotFound):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrDiscardsHistory),
		errors.Is(err, attendance.ErrAlreadyOpen),
		errors.Is(err, attendance.ErrSessionNotOpen),
		errors.Is(err, attendance.ErrInvalidTransition):
		return http.StatusConflict
	case errors.As(err, &partial):
		return http.StatusInternalServerError
	case errors.As(err, &write):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON error body with extra fields merged in.
func (h *handler) fail(c *gin.Context, err error, extra gin.H) {
	code := statusFor(err)
	body := gin.H{"error": err.Error()}
	var verr *validate.ValidationError
	if errors.As(err, &verr) {
		body["fields"] = verr.Fields
	}
	var partial *attendance.PartialBatchError
	if errors.As(err, &partial) {
		body["applied"] = partial.Applied
		body["failed"] = partial.Failed
	}
	for k, v := range extra {
		body[k] = v
	}
	if code >= http.StatusInternalServerError {
		h.log.Error("request failed", err, map[string]interface{}{"path": c.FullPath(), "tenant": tenant(c)})
	}
	c.AbortWithStatusJSON(code, body)
}

// bind decodes the JSON body into req and validates it.
func (h *handler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	if err := h.v.Struct(req); err != nil {
		h.fail(c, err, nil)
		return false
	}
	return true
}
