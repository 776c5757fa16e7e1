package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/schedule"
)

type createEventRequest struct {
	attendance.EventInput
	Invitees []string `json:"invitees" validate:"dive,identifier"`
}

type statusRequest struct {
	Status attendance.EventStatus `json:"status" validate:"required,oneof=upcoming completed cancelled"`
}

type rosterRequest struct {
	MemberIDs      []string `json:"member_ids" validate:"dive,identifier"`
	ConfirmDiscard bool     `json:"confirm_discard"`
}

func (h *handler) listEvents(c *gin.Context) {
	var f attendance.EventFilter
	for key, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		v := c.Query(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be RFC3339"})
			return
		}
		*dst = t
	}
	f.Status = attendance.EventStatus(c.Query("status"))
	events, err := h.svc.ListEvents(c.Request.Context(), tenant(c), f)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *handler) createEvent(c *gin.Context) {
	var req createEventRequest
	if !h.bind(c, &req) {
		return
	}
	e, plan, err := h.svc.CreateEvent(c.Request.Context(), tenant(c), req.EventInput, req.Invitees)
	if err != nil {
		h.fail(c, err, gin.H{"event": e})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"event": e, "roster": plan})
}

func (h *handler) updateEvent(c *gin.Context) {
	var req attendance.EventInput
	if !h.bind(c, &req) {
		return
	}
	e, err := h.svc.UpdateEvent(c.Request.Context(), tenant(c), c.Param("event_id"), req)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": e})
}

func (h *handler) openEvent(c *gin.Context) {
	e, err := h.svc.OpenEvent(c.Request.Context(), tenant(c), c.Param("event_id"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": e})
}

func (h *handler) setEventStatus(c *gin.Context) {
	var req statusRequest
	if !h.bind(c, &req) {
		return
	}
	e, err := h.svc.SetEventStatus(c.Request.Context(), tenant(c), c.Param("event_id"), req.Status)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": e})
}

func (h *handler) importEvents(c *gin.Context) {
	parsed, err := schedule.Parse(c.Request.Body, h.cfg.Location)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	events, err := h.svc.ImportEvents(c.Request.Context(), tenant(c), parsed)
	if err != nil {
		h.fail(c, err, gin.H{"imported": events})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"events": events})
}

func (h *handler) planRoster(c *gin.Context) {
	var req rosterRequest
	if !h.bind(c, &req) {
		return
	}
	plan, err := h.svc.PlanRoster(c.Request.Context(), tenant(c), c.Param("event_id"), req.MemberIDs)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *handler) saveRoster(c *gin.Context) {
	var req rosterRequest
	if !h.bind(c, &req) {
		return
	}
	plan, err := h.svc.SaveRoster(c.Request.Context(), tenant(c), c.Param("event_id"), req.MemberIDs, req.ConfirmDiscard)
	if err != nil {
		h.fail(c, err, gin.H{"plan": plan})
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *handler) roster(c *gin.Context) {
	entries, err := h.svc.Roster(c.Request.Context(), tenant(c), c.Param("event_id"), c.Query("session_id"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roster": entries})
}

func (h *handler) summary(c *gin.Context) {
	s, err := h.svc.Summary(c.Request.Context(), tenant(c), c.Param("event_id"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handler) scans(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	scans, err := h.registry.ListScanEvents(c.Request.Context(), tenant(c), c.Param("event_id"), c.Query("member_id"), limit, offset)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scans": scans})
}

func (h *handler) recap(c *gin.Context) {
	var f attendance.RecapFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ranked, err := h.svc.Recap(c.Request.Context(), tenant(c), f)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": ranked})
}
