// Package httpapi exposes the reference backend over the attendance REST
// contract.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/classroll/attendance/internal/auth"
	"github.com/classroll/attendance/internal/backend"
	"github.com/classroll/attendance/internal/httpmiddleware"
	"github.com/classroll/attendance/internal/model"
)

// Options configures the router.
type Options struct {
	SigningKey      string
	Issuer          string
	AllowedOrigins  []string
	RateLimitPerMin int
	Registry        *prometheus.Registry
	// Healthy reports dependency health for /healthz. Nil means always healthy.
	Healthy func(ctx context.Context) map[string]bool
}

type handler struct {
	svc *backend.Service
	log *zap.Logger
}

// NewRouter builds the gin engine.
func NewRouter(svc *backend.Service, opts Options, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	h := &handler{svc: svc, log: logger}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger, "/healthz", "/metrics"))
	r.Use(corsMiddleware(opts.AllowedOrigins))
	r.Use(securityHeaders())
	r.Use(NewMetrics(opts.Registry).middleware())

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})))
	r.GET("/healthz", func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{"status": "ok"}
		if opts.Healthy != nil {
			for name, ok := range opts.Healthy(c.Request.Context()) {
				body[name] = ok
				if !ok {
					status = http.StatusServiceUnavailable
					body["status"] = "degraded"
				}
			}
		}
		c.JSON(status, body)
	})

	login := []gin.HandlerFunc{h.login}
	if opts.RateLimitPerMin > 0 {
		limiter := httpmiddleware.NewTokenBucket(opts.RateLimitPerMin, opts.RateLimitPerMin)
		login = append([]gin.HandlerFunc{limiter.Middleware()}, login...)
	}
	r.POST("/auth/login", login...)

	api := r.Group("", auth.Bearer(opts.SigningKey, opts.Issuer))
	api.GET("/courses", h.listCourses)
	api.GET("/courses/:id/schedules", h.listSchedules)
	api.GET("/courses/:id/students", h.listRoster)
	api.GET("/courses/:id/sessions", h.listSessions)
	api.GET("/sessions/:id/attendance", h.listAttendance)
	api.GET("/sessions/:id/summary", h.summary)

	write := api.Group("", auth.RequireRole(auth.RoleTeacher, auth.RoleAdmin))
	write.POST("/sessions", h.createSession)
	write.PUT("/sessions/:id", h.updateSession)
	write.POST("/attendance", h.upsertAttendance)

	return r
}

func (h *handler) login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}
	tok, err := h.svc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tok.AccessToken, "expiresAt": tok.ExpiresAt.Unix()})
}

func (h *handler) listCourses(c *gin.Context) {
	courses, err := h.svc.Repo().ListCourses(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(courses))
}

func (h *handler) listSchedules(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	schedules, err := h.svc.Repo().ListSchedules(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(schedules))
}

func (h *handler) listRoster(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if _, err := h.svc.Repo().GetCourse(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	roster, err := h.svc.Repo().ListRoster(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(roster))
}

func (h *handler) listSessions(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var scheduleID *int64
	if v := c.Query("scheduleId"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "scheduleId must be a number"})
			return
		}
		scheduleID = &parsed
	}
	sessions, err := h.svc.Repo().ListSessions(c.Request.Context(), id, scheduleID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(sessions))
}

func (h *handler) createSession(c *gin.Context) {
	var req model.NewSession
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	s, err := h.svc.CreateSession(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *handler) updateSession(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req model.Session
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	req.ID = id
	s, err := h.svc.UpdateSession(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handler) listAttendance(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if _, err := h.svc.Repo().GetSession(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	records, err := h.svc.Repo().ListRecords(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(records))
}

func (h *handler) upsertAttendance(c *gin.Context) {
	var req model.RecordInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	rec, err := h.svc.UpsertRecord(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *handler) summary(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	sum, err := h.svc.Repo().GetSummary(c.Request.Context(), id)
	if errors.Is(err, backend.ErrNotFound) {
		// The worker may not have caught up yet.
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		sum, err = h.svc.Summarize(ctx, id)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// fail maps service errors to statuses.
func (h *handler) fail(c *gin.Context, err error) {
	var inv *backend.InvalidError
	switch {
	case errors.Is(err, backend.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, backend.ErrFinalized):
		c.JSON(http.StatusConflict, gin.H{"error": "session is finalized; attendance can no longer be changed"})
	case errors.Is(err, backend.ErrReopen):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, backend.ErrNotEnrolled):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, backend.ErrBadCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.As(err, &inv):
		c.JSON(http.StatusBadRequest, gin.H{"error": inv.Error()})
	default:
		_ = c.Error(err)
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive number"})
		return 0, false
	}
	return id, true
}

// nonNil keeps empty lists as [] on the wire.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
