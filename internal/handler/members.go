package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
)

type memberRequest struct {
	Name           string `json:"name" validate:"required,max=200"`
	GroupID        string `json:"group_id" validate:"omitempty,identifier"`
	DivisionID     string `json:"division_id" validate:"omitempty,identifier"`
	OrganizationID string `json:"organization_id" validate:"omitempty,identifier"`
}

func (h *handler) saveMember(c *gin.Context) {
	var req memberRequest
	if !h.bind(c, &req) {
		return
	}
	m := attendance.Member{
		ID:             c.Param("member_id"),
		TenantID:       tenant(c),
		Name:           req.Name,
		GroupID:        req.GroupID,
		DivisionID:     req.DivisionID,
		OrganizationID: req.OrganizationID,
	}
	if err := h.svc.SaveMember(c.Request.Context(), m); err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"member": m})
}

func (h *handler) searchMembers(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	candidates, err := h.svc.SearchMembers(c.Request.Context(), tenant(c), q)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": candidates})
}

func (h *handler) history(c *gin.Context) {
	var f attendance.RecapFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rows, err := h.svc.History(c.Request.Context(), tenant(c), c.Param("member_id"), f)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": rows})
}

func (h *handler) recordStatus(c *gin.Context) {
	label, err := h.svc.RecordStatus(c.Request.Context(), tenant(c), c.Param("event_id"), c.Param("member_id"), c.Query("session_id"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invited": label != nil, "label": label})
}

func (h *handler) resetRecord(c *gin.Context) {
	if err := h.svc.ResetRecord(c.Request.Context(), tenant(c), c.Param("event_id"), c.Param("member_id")); err != nil {
		h.fail(c, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}
