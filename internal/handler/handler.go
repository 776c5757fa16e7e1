// Package handler exposes the attendance engine over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/logger"
	"rollcall/internal/store"
	"rollcall/internal/validate"
)

// Config holds the HTTP-facing settings.
type Config struct {
	Issuer          string
	SigningKey      string
	BootstrapKey    string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	RateLimitPerMin int
	Location        *time.Location
}

// Registry stores scan stations, their refresh tokens and the scan audit log.
type Registry interface {
	UpsertDevice(ctx context.Context, tenantID, deviceID string) error
	SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error
	RevokeRefreshToken(ctx context.Context, token string) error
	RefreshTokenActive(ctx context.Context, token string) (bool, error)
	ListScanEvents(ctx context.Context, tenantID, eventID, memberID string, limit, offset int) ([]attendance.ScanEvent, error)
}

// Deps are the collaborators the handlers call into.
type Deps struct {
	Service   *attendance.Service
	Stages    store.Stages
	Registry  Registry
	Validator *validate.Validator
	Log       logger.Logger
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// OnRateLimit is called for every request the limiter rejects.
	OnRateLimit func()
	// Checks are reported by /healthz; any false check reports the service degraded.
	Checks map[string]func(context.Context) bool
}

type handler struct {
	cfg      Config
	svc      *attendance.Service
	stages   store.Stages
	registry Registry
	v        *validate.Validator
	log      logger.Logger
}

// New builds the router.
func New(cfg Config, d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = logger.Nop{}
	}
	if d.Validator == nil {
		d.Validator = validate.New()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	h := &handler{
		cfg:      cfg,
		svc:      d.Service,
		stages:   d.Stages,
		registry: d.Registry,
		v:        d.Validator,
		log:      d.Log,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())

	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}
	r.GET("/healthz", health(d.Checks))

	r.POST("/v1/devices/register", h.register)
	r.POST("/v1/tokens/refresh", h.refresh)

	limiter := httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	v1 := r.Group("/v1", auth.Bearer(cfg.SigningKey, cfg.Issuer))
	if cfg.RateLimitPerMin > 0 {
		v1.Use(limiter.GinMiddleware(callerKey, d.OnRateLimit))
	}

	// scan stations and operators
	v1.POST("/checkins", h.stage)
	v1.POST("/checkins/:token/confirm", h.confirm)
	v1.POST("/checkins/:token/abandon", h.abandon)
	v1.GET("/members/search", h.searchMembers)
	v1.GET("/events/:event_id/roster", h.roster)
	v1.GET("/events/:event_id/members/:member_id/status", h.recordStatus)

	op := v1.Group("", auth.Require(auth.RoleOperator))
	op.GET("/events", h.listEvents)
	op.POST("/events", h.createEvent)
	op.POST("/events/import", h.importEvents)
	op.PUT("/events/:event_id", h.updateEvent)
	op.POST("/events/:event_id/open", h.openEvent)
	op.PUT("/events/:event_id/status", h.setEventStatus)
	op.POST("/events/:event_id/roster/plan", h.planRoster)
	op.PUT("/events/:event_id/roster", h.saveRoster)
	op.GET("/events/:event_id/summary", h.summary)
	op.GET("/events/:event_id/scans", h.scans)
	op.POST("/events/:event_id/members/:member_id/reset", h.resetRecord)
	op.PUT("/members/:member_id", h.saveMember)
	op.GET("/members/:member_id/history", h.history)
	op.GET("/recap", h.recap)

	return r
}

// callerKey charges authenticated requests to their token subject.
func callerKey(c *gin.Context) string {
	if claims, ok := auth.FromContext(c); ok {
		return claims.TenantID + ":" + claims.Subject
	}
	return httpmiddleware.ClientIP(c)
}

func tenant(c *gin.Context) string {
	claims, _ := auth.FromContext(c)
	return claims.TenantID
}

func health(checks map[string]func(context.Context) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		status := http.StatusOK
		for name, check := range checks {
			ok := check(c.Request.Context())
			body[name] = ok
			if !ok {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
		c.JSON(status, body)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Bootstrap-Key")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
