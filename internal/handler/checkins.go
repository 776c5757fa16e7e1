package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
)

type stageRequest struct {
	EventID    string                `json:"event_id" validate:"required,identifier"`
	SessionID  string                `json:"session_id" validate:"omitempty,identifier"`
	Identifier string                `json:"identifier" validate:"required,max=200"`
	Mode       attendance.LookupMode `json:"mode" validate:"omitempty,oneof=scan manual"`
}

type confirmRequest struct {
	Disposition attendance.Disposition `json:"disposition" validate:"required,oneof=present excused"`
	Reason      string                 `json:"reason" validate:"max=500"`
}

// stage resolves and classifies a scan, holding it until the operator
// confirms or abandons it.
func (h *handler) stage(c *gin.Context) {
	var req stageRequest
	if !h.bind(c, &req) {
		return
	}
	claims, _ := auth.FromContext(c)
	a := attendance.NewAttempt(claims.TenantID, req.EventID, req.SessionID, req.Identifier, req.Mode)
	a.Source = claims.Subject

	a = h.svc.Stage(c.Request.Context(), a)
	if a.State == attendance.StateFailed {
		c.JSON(statusFor(a.Outcome.Err), gin.H{"attempt": a, "error": a.Outcome.Message})
		return
	}
	if err := h.stages.Put(c.Request.Context(), a); err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"attempt": a})
}

func (h *handler) confirm(c *gin.Context) {
	var req confirmRequest
	if !h.bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	a, err := h.stages.Get(ctx, tenant(c), c.Param("token"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}

	out := h.svc.Commit(ctx, a, req.Disposition, req.Reason)
	switch out.State {
	case attendance.StateCommitted:
		_ = h.stages.Delete(ctx, out.TenantID, out.Token)
		c.JSON(http.StatusOK, gin.H{"attempt": out})
	case attendance.StateStaged:
		// nothing was written; keep the stage so the operator can retry
		if err := h.stages.Put(ctx, out); err != nil {
			h.log.Warn("re-staging check-in failed", err)
		}
		c.JSON(statusFor(out.Outcome.Err), gin.H{"attempt": out, "error": out.Outcome.Message})
	default:
		_ = h.stages.Delete(ctx, out.TenantID, out.Token)
		c.JSON(statusFor(out.Outcome.Err), gin.H{"attempt": out, "error": out.Outcome.Message})
	}
}

func (h *handler) abandon(c *gin.Context) {
	ctx := c.Request.Context()
	a, err := h.stages.Get(ctx, tenant(c), c.Param("token"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	out := h.svc.Abandon(a)
	if err := h.stages.Delete(ctx, a.TenantID, a.Token); err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempt": out})
}
