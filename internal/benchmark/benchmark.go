// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package benchmark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-router/internal/llm"
	"github.com/jeranaias/rigrun-router/internal/quality"
)

// DefaultTarget is the quality a test must reach to count as passed.
const DefaultTarget = 9.0

// ErrNoTests is returned when a runner has an empty suite.
var ErrNoTests = errors.New("benchmark: no tests configured")

// =============================================================================
// BENCHMARK RUNNER
// =============================================================================

// Runner executes the suite against local models. Models and tests run
// sequentially so latencies are not skewed by contention.
type Runner struct {
	gen    llm.Generator
	tests  []Test
	target float64
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithTests replaces the standard suite.
func WithTests(tests []Test) Option {
	return func(r *Runner) { r.tests = tests }
}

// WithTarget sets the passing quality score.
func WithTarget(target float64) Option {
	return func(r *Runner) { r.target = target }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides time.Now for latency measurement.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a runner over gen.
func NewRunner(gen llm.Generator, opts ...Option) *Runner {
	r := &Runner{
		gen:    gen,
		tests:  StandardTests(),
		target: DefaultTarget,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every test on model. Generation failures are recorded on
// the test; only cancellation aborts the run.
func (r *Runner) Run(ctx context.Context, model string) (*Result, error) {
	if len(r.tests) == 0 {
		return nil, ErrNoTests
	}

	res := &Result{
		Model:     model,
		StartTime: r.now(),
		Tests:     make([]TestResult, 0, len(r.tests)),
	}
	for _, t := range r.tests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Tests = append(res.Tests, r.runTest(ctx, model, t))
	}
	res.Duration = r.now().Sub(res.StartTime)
	res.computeAggregates()

	r.logger.Info("benchmark finished",
		zap.String("model", model),
		zap.Int("passed", res.PassedTests),
		zap.Int("failed", res.FailedTests),
		zap.Float64("avg_quality", res.AvgQuality),
		zap.Duration("avg_latency", res.AvgLatency))
	return res, nil
}

func (r *Runner) runTest(ctx context.Context, model string, t Test) TestResult {
	tr := TestResult{Name: t.Name, Type: t.Type}
	if t.Prompt == "" {
		tr.Status = TestStatusFailed
		tr.Error = "empty prompt"
		return tr
	}

	start := r.now()
	text, err := r.gen.Generate(ctx, model, t.Prompt, llm.DefaultTemperature)
	tr.Latency = r.now().Sub(start)
	if err != nil {
		tr.Status = TestStatusFailed
		tr.Error = err.Error()
		r.logger.Debug("benchmark test failed",
			zap.String("model", model),
			zap.String("test", t.Name),
			zap.Error(err))
		return tr
	}

	tr.Response = text
	tr.Quality = quality.Score(text, t.Prompt)
	tr.Status = TestStatusPassed
	if tr.Quality < r.target || (t.Check != nil && !t.Check(text)) {
		tr.Status = TestStatusBelowTarget
	}
	return tr
}

// RunComparison benchmarks each model in turn. It returns an error only
// when ctx is canceled or no model answered any test.
func (r *Runner) RunComparison(ctx context.Context, models []string) (*Comparison, error) {
	cmp := &Comparison{
		Models:    append([]string(nil), models...),
		Results:   make(map[string]*Result, len(models)),
		Target:    r.target,
		StartTime: r.now(),
	}

	answered := 0
	for _, m := range models {
		res, err := r.Run(ctx, m)
		if err != nil {
			return nil, err
		}
		cmp.Results[m] = res
		if res.FailedTests < len(res.Tests) {
			answered++
		}
	}
	cmp.Duration = r.now().Sub(cmp.StartTime)

	if answered == 0 {
		return cmp, fmt.Errorf("benchmark: no model answered (%d tried)", len(models))
	}
	return cmp, nil
}
