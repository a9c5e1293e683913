// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jeranaias/rigrun-router/internal/attempt"
	"github.com/jeranaias/rigrun-router/internal/router"
)

const namespace = "rigrun"

// Outcome labels. LocalLimitReached reasons carry validation codes, so the
// label is the variant and not the full receipt reason.
const (
	LabelAccepted   = "accepted"
	LabelRetryOK    = "retry_accepted"
	LabelEscalation = "escalation_suggested"
	LabelLocalLimit = "local_limit"
)

// =============================================================================
// METRICS
// =============================================================================

// Metrics holds the Prometheus collectors.
type Metrics struct {
	outcomes      *prometheus.CounterVec
	attemptTime   *prometheus.HistogramVec
	routes        *prometheus.CounterVec
	routeTime     *prometheus.HistogramVec
	cloudCost     prometheus.Counter
	localQuality  prometheus.Histogram
	activeSession prometheus.Gauge
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns metrics registered with the global registry. Collectors
// are created once.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// MustNewMetrics registers the collectors with reg (the default registerer
// when nil) and panics on any registration error other than a duplicate of
// the same collector.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attempt",
			Name:      "outcomes_total",
			Help:      "Finished jobs by outcome.",
		}, []string{"outcome"}),
		attemptTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "attempt",
			Name:      "duration_seconds",
			Help:      "Wall time of a job attempt.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "routes_total",
			Help:      "Completed routes by status.",
		}, []string{"status"}),
		routeTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "duration_seconds",
			Help:      "Wall time of a route.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"status"}),
		cloudCost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "cloud_cost_dollars_total",
			Help:      "Dollars spent on cloud completions.",
		}),
		localQuality: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "local_quality_score",
			Help:      "Quality score of the best local answer.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
		activeSession: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "active_sessions",
			Help:      "Sessions held in memory.",
		}),
	}

	m.outcomes = register(reg, m.outcomes)
	m.attemptTime = register(reg, m.attemptTime)
	m.routes = register(reg, m.routes)
	m.routeTime = register(reg, m.routeTime)
	m.cloudCost = register(reg, m.cloudCost)
	m.localQuality = register(reg, m.localQuality)
	m.activeSession = register(reg, m.activeSession)
	return m
}

// register returns the already-registered collector when c is a duplicate.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(fmt.Sprintf("telemetry: register collector: %v", err))
	}
	return c
}

// =============================================================================
// OBSERVERS
// =============================================================================

// OutcomeLabel returns the metric label for o.
func OutcomeLabel(o attempt.Outcome) string {
	switch o.(type) {
	case attempt.Accepted:
		return LabelAccepted
	case attempt.RetryAccepted:
		return LabelRetryOK
	case attempt.EscalationSuggested:
		return LabelEscalation
	case attempt.LocalLimitReached:
		return LabelLocalLimit
	default:
		panic(fmt.Sprintf("telemetry: unhandled outcome %T", o))
	}
}

// ObserveOutcome implements attempt.Observer.
func (m *Metrics) ObserveOutcome(_ context.Context, _ attempt.Job, o attempt.Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := OutcomeLabel(o)
	m.outcomes.WithLabelValues(label).Inc()
	m.attemptTime.WithLabelValues(label).Observe(elapsed.Seconds())
}

// ObserveRoute implements router.Observer.
func (m *Metrics) ObserveRoute(_ context.Context, res *router.Result, elapsed time.Duration) {
	if m == nil || res == nil {
		return
	}
	status := string(res.Status)
	m.routes.WithLabelValues(status).Inc()
	m.routeTime.WithLabelValues(status).Observe(elapsed.Seconds())

	switch res.Status {
	case router.StatusCloudSuccess:
		m.cloudCost.Add(res.Cost)
		if res.LocalResult != nil && res.LocalResult.Success {
			m.localQuality.Observe(res.LocalResult.Quality)
		}
	case router.StatusLocalSuccess:
		m.localQuality.Observe(res.Quality)
	case router.StatusLocalLimited:
		if res.LocalResult != nil && res.LocalResult.Success {
			m.localQuality.Observe(res.LocalResult.Quality)
		}
	}
}

// SetActiveSessions records the number of in-memory sessions.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSession.Set(float64(n))
}

var (
	_ attempt.Observer = (*Metrics)(nil)
	_ router.Observer  = (*Metrics)(nil)
)
