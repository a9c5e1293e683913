// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"time"
)

// DefaultTemperature asks the back-end to use the model's own default
// sampling temperature instead of an explicit value.
const DefaultTemperature = -1.0

// Generator produces one completion for a prompt from a named model.
// Implementations do not retry; retry policy belongs to the caller.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, temperature float64) (string, error)
}

// Completion is a paid completion with the usage needed for costing.
type Completion struct {
	Model        string
	Text         string
	InputTokens  int
	OutputTokens int
	Latency      time.Duration
}

// Completer runs a prompt against a cloud model and reports token usage.
type Completer interface {
	Complete(ctx context.Context, model, prompt string) (Completion, error)
	IsConfigured() bool
}
