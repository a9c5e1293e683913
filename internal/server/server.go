// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-router/internal/router"
	"github.com/jeranaias/rigrun-router/internal/session"
	"github.com/jeranaias/rigrun-router/internal/storage"
	"github.com/jeranaias/rigrun-router/internal/telemetry"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultListen is the default listen address.
	DefaultListen = "127.0.0.1:8787"

	// APIPrefix is the route group for the routing API.
	APIPrefix = "/api/v1/routing"

	// MaxPromptLength is the maximum prompt size in bytes.
	MaxPromptLength = 100000

	// MaxRequestBodySize caps request bodies (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// MaxRecentSessions caps the limit query parameter.
	MaxRecentSessions = 100

	// SweepInterval is how often idle rate limit buckets are dropped.
	SweepInterval = time.Minute
)

// ============================================================================
// DEPENDENCIES
// ============================================================================

// Routing is the router surface served over HTTP.
type Routing interface {
	Route(ctx context.Context, prompt, sessionID string, autoUpgrade bool) (*router.Result, error)
	UpgradeToCloud(ctx context.Context, sessionID, prompt, model string) (*router.Result, error)
	SessionStatus(id string) (router.SessionStatus, error)
	EndSession(ctx context.Context, id string) error
	Health(ctx context.Context) router.Health
	Stats() router.StatsSnapshot
}

// History is the persisted routing data. It may be nil.
type History interface {
	CostStats(ctx context.Context, days int) (storage.CostStats, error)
	RecentSessions(ctx context.Context, limit int) ([]storage.SessionRow, error)
	GetSession(ctx context.Context, id string) (storage.SessionRow, error)
}

// Config holds the listener and rate limit settings.
type Config struct {
	Listen string
	// RateLimit is requests per second per client IP; 0 disables limiting.
	RateLimit float64
	Burst     int
	// Offline rejects jobs that ask for a remote tier.
	Offline bool
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the HTTP front end for a Routing.
type Server struct {
	cfg     Config
	routing Routing
	history History
	logger  *zap.Logger
	metrics *telemetry.Metrics
	gather  prometheus.Gatherer
	limiter *RateLimiter
	jobs    JobRunner

	engine *gin.Engine
	http   *http.Server

	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics serves g on /metrics and keeps the active sessions gauge of m
// current on health checks.
func WithMetrics(m *telemetry.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gather = g
	}
}

// New builds a Server. history may be nil, in which case the stats and
// recent sessions endpoints answer 503. Jobs also answer 503 unless WithJobs
// is given.
func New(rt Routing, history History, cfg Config, opts ...Option) *Server {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	s := &Server{
		cfg:     cfg,
		routing: rt,
		history: history,
		logger:  zap.NewNop(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.RateLimit > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimit, cfg.Burst)
	}

	s.engine = s.buildEngine()
	s.http = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Local model fan-out plus a cloud call can take minutes.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Listen
}

func (s *Server) buildEngine() *gin.Engine {
	e := gin.New()
	// Client IP is always the socket peer.
	_ = e.SetTrustedProxies(nil)

	e.Use(Recovery(s.logger), RequestLogger(s.logger), SecurityHeaders())
	if s.limiter != nil {
		e.Use(RateLimit(s.limiter))
	}
	e.Use(BodyLimit(MaxRequestBodySize))

	e.NoRoute(func(c *gin.Context) {
		RespondError(c, http.StatusNotFound, ErrCodeNotFound, "no such endpoint")
	})

	api := e.Group(APIPrefix)
	api.POST("/process", s.handleProcess)
	api.POST("/upgrade", s.handleUpgrade)
	api.GET("/session/:id", s.handleSession)
	api.POST("/session/:id/end", s.handleEndSession)
	api.GET("/stats", s.handleStats)
	api.GET("/sessions/recent", s.handleRecentSessions)
	api.GET("/health", s.handleHealth)

	e.POST(JobsPath, s.handleJob)

	if s.gather != nil {
		e.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{})))
	}
	return e
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown. It returns http.ErrServerClosed after
// a clean shutdown.
func (s *Server) Serve(ln net.Listener) error {
	if s.limiter != nil {
		go s.limiter.run(s.done, SweepInterval)
	}
	s.logger.Info("server started", zap.String("addr", ln.Addr().String()))
	return s.http.Serve(ln)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.done) })
	s.logger.Info("server shutting down")
	return s.http.Shutdown(ctx)
}

// ============================================================================
// REQUESTS
// ============================================================================

// ProcessRequest is the body of POST /process.
type ProcessRequest struct {
	Prompt      string `json:"prompt"`
	SessionID   string `json:"session_id,omitempty"`
	AutoUpgrade bool   `json:"auto_upgrade"`
}

// UpgradeRequest is the body of POST /upgrade. Model empty picks the best
// ranked option.
type UpgradeRequest struct {
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
	Model     string `json:"model,omitempty"`
}

// bindJSON decodes the body into v, answering 400 or 413 on failure.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RespondError(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", MaxRequestBodySize))
			return false
		}
		_ = c.Error(err)
		RespondError(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return false
	}
	return true
}

func checkPrompt(c *gin.Context, prompt string) bool {
	switch {
	case prompt == "":
		RespondError(c, http.StatusBadRequest, ErrCodeBadRequest, "prompt is required")
		return false
	case len(prompt) > MaxPromptLength:
		RespondError(c, http.StatusBadRequest, ErrCodeBadRequest,
			fmt.Sprintf("prompt exceeds maximum length of %d", MaxPromptLength))
		return false
	}
	return true
}

// queryInt parses an optional positive integer query parameter.
func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		RespondError(c, http.StatusBadRequest, ErrCodeBadRequest,
			fmt.Sprintf("%s must be a positive integer", name))
		return 0, false
	}
	return n, true
}

// ============================================================================
// HANDLERS
// ============================================================================

func (s *Server) handleProcess(c *gin.Context) {
	var req ProcessRequest
	if !bindJSON(c, &req) || !checkPrompt(c, req.Prompt) {
		return
	}
	res, err := s.routing.Route(c.Request.Context(), req.Prompt, req.SessionID, req.AutoUpgrade)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleUpgrade(c *gin.Context) {
	var req UpgradeRequest
	if !bindJSON(c, &req) || !checkPrompt(c, req.Prompt) {
		return
	}
	if req.SessionID == "" {
		RespondError(c, http.StatusBadRequest, ErrCodeBadRequest, "session_id is required")
		return
	}
	res, err := s.routing.UpgradeToCloud(c.Request.Context(), req.SessionID, req.Prompt, req.Model)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// handleSession answers from live sessions first, then from history so
// swept sessions stay visible.
func (s *Server) handleSession(c *gin.Context) {
	id := c.Param("id")
	st, err := s.routing.SessionStatus(id)
	if err == nil {
		c.JSON(http.StatusOK, st)
		return
	}
	if !errors.Is(err, session.ErrSessionNotFound) || s.history == nil {
		respondErr(c, err)
		return
	}
	row, herr := s.history.GetSession(c.Request.Context(), id)
	if herr != nil {
		respondErr(c, herr)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (s *Server) handleEndSession(c *gin.Context) {
	id := c.Param("id")
	if err := s.routing.EndSession(c.Request.Context(), id); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "Session ended successfully",
		"session_id": id,
	})
}

// statsResponse is the persisted cost window plus in-process counters.
type statsResponse struct {
	storage.CostStats
	Router router.StatsSnapshot `json:"router"`
}

func (s *Server) handleStats(c *gin.Context) {
	if s.history == nil {
		RespondError(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "routing history is not configured")
		return
	}
	days, ok := queryInt(c, "days", storage.DefaultStatsDays)
	if !ok {
		return
	}
	st, err := s.history.CostStats(c.Request.Context(), days)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, statsResponse{CostStats: st, Router: s.routing.Stats()})
}

func (s *Server) handleRecentSessions(c *gin.Context) {
	if s.history == nil {
		RespondError(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "routing history is not configured")
		return
	}
	limit, ok := queryInt(c, "limit", storage.DefaultRecentSessions)
	if !ok {
		return
	}
	if limit > MaxRecentSessions {
		limit = MaxRecentSessions
	}
	rows, err := s.history.RecentSessions(c.Request.Context(), limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	if rows == nil {
		rows = []storage.SessionRow{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": rows})
}

func (s *Server) handleHealth(c *gin.Context) {
	h := s.routing.Health(c.Request.Context())
	s.metrics.SetActiveSessions(h.ActiveSessions)
	c.JSON(http.StatusOK, h)
}
