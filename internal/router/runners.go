// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-router/internal/advisor"
	"github.com/jeranaias/rigrun-router/internal/llm"
	"github.com/jeranaias/rigrun-router/internal/quality"
)

// DefaultLocalTimeout bounds each local model run.
const DefaultLocalTimeout = 60 * time.Second

// DefaultLocalModels returns the local models tried for every prompt, in
// order.
func DefaultLocalModels() []string {
	return []string{
		"llama3.2:3b",
		"qwen2.5-coder:7b",
		"gemma2:latest",
		"llama3.1:8b-instruct-q8_0",
	}
}

// =============================================================================
// LOCAL RUNNER
// =============================================================================

// LocalRunner runs prompts through the local models and scores them.
type LocalRunner struct {
	gen     llm.Generator
	models  []string
	timeout time.Duration
	logger  *zap.Logger
}

// NewLocalRunner creates a runner over models. Nil models uses
// DefaultLocalModels and a non-positive timeout uses DefaultLocalTimeout.
func NewLocalRunner(gen llm.Generator, models []string, timeout time.Duration, logger *zap.Logger) *LocalRunner {
	if models == nil {
		models = DefaultLocalModels()
	}
	if timeout <= 0 {
		timeout = DefaultLocalTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ms := make([]string, len(models))
	copy(ms, models)
	return &LocalRunner{gen: gen, models: ms, timeout: timeout, logger: logger}
}

// Models returns the configured local models.
func (l *LocalRunner) Models() []string {
	out := make([]string, len(l.models))
	copy(out, l.models)
	return out
}

// Generator returns the underlying generator.
func (l *LocalRunner) Generator() llm.Generator {
	return l.gen
}

// Run runs prompt on one model. Failures are reported in the result.
func (l *LocalRunner) Run(ctx context.Context, prompt, model string) LocalResult {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	text, err := l.gen.Generate(ctx, model, prompt, llm.DefaultTemperature)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		msg := err.Error()
		if llm.IsTimeout(err) {
			msg = "Timeout"
		}
		l.logger.Debug("local model failed", zap.String("model", model), zap.Error(err))
		return LocalResult{Model: model, ResponseTime: elapsed, Error: msg}
	}

	return LocalResult{
		Model:        model,
		Response:     text,
		Quality:      quality.Score(text, prompt),
		ResponseTime: elapsed,
		Success:      true,
	}
}

// Best runs prompt on every model in order and returns the highest scoring
// success. The first model wins ties. If every model fails the first
// failure is returned. Models are not started once ctx is done.
func (l *LocalRunner) Best(ctx context.Context, prompt string) LocalResult {
	if len(l.models) == 0 {
		return LocalResult{Error: "no local models configured"}
	}

	var (
		first LocalResult
		best  *LocalResult
	)
	for i, model := range l.models {
		if ctx.Err() != nil {
			if i == 0 {
				first = LocalResult{Model: model, Error: ctx.Err().Error()}
			}
			break
		}
		res := l.Run(ctx, prompt, model)
		if i == 0 {
			first = res
		}
		if !res.Success {
			continue
		}
		if best == nil || res.Quality > best.Quality {
			r := res
			best = &r
		}
	}

	if best == nil {
		return first
	}
	l.logger.Debug("best local result",
		zap.String("model", best.Model),
		zap.Float64("quality", best.Quality))
	return *best
}

// =============================================================================
// CLOUD RUNNER
// =============================================================================

// CloudRunner runs prompts on paid models and prices them from usage.
type CloudRunner struct {
	completer llm.Completer
	advisor   *advisor.Advisor
}

// NewCloudRunner creates a cloud runner. A nil completer is treated as not
// configured.
func NewCloudRunner(c llm.Completer, adv *advisor.Advisor) *CloudRunner {
	if adv == nil {
		adv = advisor.New(nil)
	}
	return &CloudRunner{completer: c, advisor: adv}
}

// IsConfigured reports whether cloud calls can be made.
func (c *CloudRunner) IsConfigured() bool {
	return c.completer != nil && c.completer.IsConfigured()
}

// Run completes prompt on model. Quality comes from the pricing table and
// cost from the reported token usage at the table rate for model.
func (c *CloudRunner) Run(ctx context.Context, prompt, model string) (CloudResult, error) {
	if !c.IsConfigured() {
		return CloudResult{}, llm.NewTransportError("cloud", model, llm.KindNotConfigured, "No API key configured", nil)
	}

	start := time.Now()
	comp, err := c.completer.Complete(ctx, model, prompt)
	if err != nil {
		return CloudResult{}, err
	}

	latency := comp.Latency
	if latency <= 0 {
		latency = time.Since(start)
	}
	return CloudResult{
		Model:        model,
		Response:     comp.Text,
		Quality:      c.advisor.QualityOf(model),
		Cost:         c.advisor.Cost(model, comp.InputTokens, comp.OutputTokens),
		ResponseTime: latency.Seconds(),
		InputTokens:  comp.InputTokens,
		OutputTokens: comp.OutputTokens,
	}, nil
}
