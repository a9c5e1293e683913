// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the tiered router over HTTP.
//
// # Endpoints
//
//   - POST /api/v1/routing/process        - Route a prompt local-first
//   - POST /api/v1/routing/upgrade        - Rerun a prompt on a paid model
//   - GET  /api/v1/routing/session/:id     - Session status
//   - POST /api/v1/routing/session/:id/end - End a session
//   - GET  /api/v1/routing/stats          - Cost statistics (?days=7)
//   - GET  /api/v1/routing/sessions/recent - Recent sessions (?limit=10)
//   - GET  /api/v1/routing/health         - Router health
//   - POST /api/v1/jobs                   - Run a job through local consensus (optional)
//   - GET  /metrics                       - Prometheus metrics (optional)
//
// # Middleware
//
//   - Panic recovery with a JSON error body
//   - Structured request logging through zap
//   - Per client IP token bucket rate limiting with X-RateLimit-* headers
//   - Security headers on every response
//
// Errors are returned as {"error": {"code": ..., "message": ...}}. Unknown
// sessions map to 404, malformed input to 400, back-end transport failures
// to 502 and everything else to 500.
//
// # Usage
//
//	srv := server.New(rt, store, server.Config{Listen: "127.0.0.1:8787"},
//	    server.WithLogger(logger),
//	    server.WithMetrics(metrics, prometheus.DefaultGatherer),
//	)
//	go srv.Start()
//	defer srv.Shutdown(ctx)
package server
