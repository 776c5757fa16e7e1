package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/auth"
)

type registerRequest struct {
	DeviceID string `json:"device_id" validate:"required,identifier"`
	TenantID string `json:"tenant_id" validate:"required,identifier"`
	Role     string `json:"role" validate:"omitempty,oneof=station operator"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// register enrolls a scan station or operator console for a tenant. When a
// bootstrap key is configured the caller must present it.
func (h *handler) register(c *gin.Context) {
	if h.cfg.BootstrapKey != "" &&
		subtle.ConstantTimeCompare([]byte(c.GetHeader("X-Bootstrap-Key")), []byte(h.cfg.BootstrapKey)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "bootstrap key required"})
		return
	}
	var req registerRequest
	if !h.bind(c, &req) {
		return
	}
	if req.Role == "" {
		req.Role = auth.RoleStation
	}
	ctx := c.Request.Context()
	if err := h.registry.UpsertDevice(ctx, req.TenantID, req.DeviceID); err != nil {
		h.fail(c, err, nil)
		return
	}
	h.issue(c, http.StatusCreated, req.DeviceID, req.TenantID, req.Role)
}

// refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued.
func (h *handler) refresh(c *gin.Context) {
	var req refreshRequest
	if !h.bind(c, &req) {
		return
	}
	claims, err := auth.Parse(req.RefreshToken, h.cfg.SigningKey, h.cfg.Issuer)
	if err != nil || !claims.Refresh {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	ctx := c.Request.Context()
	active, err := h.registry.RefreshTokenActive(ctx, req.RefreshToken)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	if !active {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token revoked"})
		return
	}
	if err := h.registry.RevokeRefreshToken(ctx, req.RefreshToken); err != nil {
		h.fail(c, err, nil)
		return
	}
	h.issue(c, http.StatusOK, claims.Subject, claims.TenantID, claims.Role)
}

func (h *handler) issue(c *gin.Context, code int, subject, tenantID, role string) {
	tokens, err := auth.Issue(subject, tenantID, role, h.cfg.Issuer, h.cfg.SigningKey, h.cfg.AccessTTL, h.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	if err := h.registry.SaveRefreshToken(c.Request.Context(), subject, tokens.RefreshToken, tokens.RefreshExp); err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(code, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}
