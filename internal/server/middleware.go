// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"errors"
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/rigrun-router/internal/llm"
	"github.com/jeranaias/rigrun-router/internal/session"
	"github.com/jeranaias/rigrun-router/internal/storage"
)

// ============================================================================
// API ERRORS
// ============================================================================

// APIError is the body of every error response.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	RetryAfter int    `json:"retry_after_ms,omitempty"`
}

// Error codes.
const (
	ErrCodeBadRequest  = "BAD_REQUEST"
	ErrCodeNotFound    = "NOT_FOUND"
	ErrCodeRateLimited = "RATE_LIMITED"
	ErrCodeUpstream    = "UPSTREAM_ERROR"
	ErrCodeUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeInternal    = "INTERNAL_ERROR"
	ErrCodeTooLarge    = "REQUEST_TOO_LARGE"
)

// RespondError aborts the request with a structured error.
func RespondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": APIError{Code: code, Message: message},
	})
}

// statusFor maps an error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case llm.IsTransport(err):
		return http.StatusBadGateway, ErrCodeUpstream
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

// respondErr records err on the context for the request logger and writes
// the mapped response. Internal errors are not echoed to the client.
func respondErr(c *gin.Context, err error) {
	_ = c.Error(err)
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	RespondError(c, status, code, msg)
}

// ============================================================================
// REQUEST LOGGER
// ============================================================================

// RequestLogger logs each request after it completes. 5xx responses log at
// error, 4xx at warn and the rest at info.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if query != "" {
			fields = append(fields, zap.String("query", query))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			logger.Error("request failed", fields...)
		case status >= 400:
			logger.Warn("client error", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

// ============================================================================
// RECOVERY
// ============================================================================

// Recovery turns a handler panic into a 500 and logs the stack.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic recovered",
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()))
				RespondError(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
			}
		}()
		c.Next()
	}
}

// ============================================================================
// SECURITY HEADERS
// ============================================================================

// SecurityHeaders sets conservative headers on every response.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'none'")
		h.Set("Cache-Control", "no-store")
		h.Set("Referrer-Policy", "no-referrer")
		c.Next()
	}
}

// BodyLimit caps request bodies at n bytes.
func BodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}

// ============================================================================
// RATE LIMITER
// ============================================================================

// RateLimiter is a token bucket per client key. Idle buckets are dropped by
// Sweep.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*bucket
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// DefaultIdleTimeout is how long an unused bucket is kept.
const DefaultIdleTimeout = 10 * time.Minute

// NewRateLimiter allows perSecond requests per key with the given burst.
// A burst below 1 is raised to 1.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		clients: make(map[string]*bucket),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idle:    DefaultIdleTimeout,
		now:     time.Now,
	}
}

// Allow consumes one token for key.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.clients[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Remaining returns the whole tokens left for key.
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.clients[key]
	if !ok {
		return rl.burst
	}
	n := int(math.Floor(b.limiter.TokensAt(rl.now())))
	if n < 0 {
		n = 0
	}
	return n
}

// Sweep drops buckets idle longer than the idle timeout and returns how
// many were removed.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idle)
	removed := 0
	for key, b := range rl.clients {
		if b.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
			removed++
		}
	}
	return removed
}

// run sweeps every interval until done is closed.
func (rl *RateLimiter) run(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			rl.Sweep()
		}
	}
}

// retryAfterMs is the time for one token to refill.
func (rl *RateLimiter) retryAfterMs() int {
	if rl.limit <= 0 {
		return 0
	}
	return int(math.Ceil(1000 / float64(rl.limit)))
}

// RateLimit rejects requests over the per-IP budget with 429 and sets
// X-RateLimit-Limit and X-RateLimit-Remaining on every response.
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	limit := strconv.Itoa(rl.burst)
	return func(c *gin.Context) {
		key := c.ClientIP()
		allowed := rl.Allow(key)

		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(rl.Remaining(key)))

		if !allowed {
			retry := rl.retryAfterMs()
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(float64(retry)/1000))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": APIError{
					Code:       ErrCodeRateLimited,
					Message:    "too many requests, please try again later",
					RetryAfter: retry,
				},
			})
			return
		}
		c.Next()
	}
}
