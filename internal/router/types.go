// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"context"
	"time"

	"github.com/jeranaias/rigrun-router/internal/advisor"
	"github.com/jeranaias/rigrun-router/internal/session"
)

// =============================================================================
// STATUS
// =============================================================================

// Status is the kind of routing outcome.
type Status string

const (
	// StatusLocalSuccess means a local answer was returned at zero cost.
	StatusLocalSuccess Status = "local_success"
	// StatusLocalLimited means the local answer fell short and upgrade
	// options are attached for a decision.
	StatusLocalLimited Status = "local_limited"
	// StatusCloudSuccess means a paid cloud model produced the answer.
	StatusCloudSuccess Status = "cloud_success"
)

// Decision records which tier's answer was kept for a task.
type Decision string

const (
	DecisionLocal Decision = "local"
	DecisionCloud Decision = "cloud"
)

// DefaultCloudModel is used for manual upgrades when nothing ranks.
const DefaultCloudModel = "anthropic/claude-3.5-sonnet"

// =============================================================================
// THRESHOLDS
// =============================================================================

// Thresholds are the quality bands on the 0-10 scale.
type Thresholds struct {
	Target     float64 `json:"target" toml:"target"`
	Acceptable float64 `json:"acceptable" toml:"acceptable"`
	Minimum    float64 `json:"minimum" toml:"minimum"`
}

// DefaultThresholds returns 9 / 7 / 5.
func DefaultThresholds() Thresholds {
	return Thresholds{Target: 9.0, Acceptable: 7.0, Minimum: 5.0}
}

// Grade names the band q falls in.
func (t Thresholds) Grade(q float64) string {
	switch {
	case q >= t.Target:
		return "target"
	case q >= t.Acceptable:
		return "acceptable"
	case q >= t.Minimum:
		return "minimum"
	default:
		return "poor"
	}
}

// =============================================================================
// RESULTS
// =============================================================================

// LocalResult is the outcome of one local model run. A failed run has
// Success false, quality 0 and the error text.
type LocalResult struct {
	Model        string  `json:"model"`
	Response     string  `json:"response"`
	Quality      float64 `json:"quality"`
	Cost         float64 `json:"cost"`
	ResponseTime float64 `json:"response_time"`
	Success      bool    `json:"success"`
	Error        string  `json:"error,omitempty"`
}

// CloudResult is a successful paid completion, priced from reported usage.
type CloudResult struct {
	Model        string  `json:"model"`
	Response     string  `json:"response"`
	Quality      float64 `json:"quality"`
	Cost         float64 `json:"cost"`
	ResponseTime float64 `json:"response_time"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
}

// Result is returned by Route and UpgradeToCloud.
type Result struct {
	Status       Status       `json:"status"`
	Response     string       `json:"response,omitempty"`
	Model        string       `json:"model,omitempty"`
	Quality      float64      `json:"quality"`
	Cost         float64      `json:"cost"`
	ResponseTime float64      `json:"response_time,omitempty"`
	Session      session.Info `json:"session"`
	Message      string       `json:"message,omitempty"`

	// Set for StatusLocalLimited only.
	LocalResult    *LocalResult            `json:"local_result,omitempty"`
	UpgradeOptions []advisor.UpgradeOption `json:"upgrade_options,omitempty"`
	Analysis       *session.Analysis       `json:"session_analysis,omitempty"`

	inputTokens, outputTokens int
}

// SessionStatus is the externally visible state of one session.
type SessionStatus struct {
	SessionID string       `json:"session_id"`
	Tier      session.Tier `json:"tier"`
	TaskCount int          `json:"task_count"`
	TotalCost float64      `json:"total_cost"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   *time.Time   `json:"ended_at"`
}

// Health reports router configuration and local reachability.
type Health struct {
	Status                string `json:"status"`
	LocalModelsConfigured int    `json:"local_models_configured"`
	CloudAPIConfigured    bool   `json:"cloud_api_configured"`
	LocalRunning          *bool  `json:"local_running,omitempty"`
	ActiveSessions        int    `json:"active_sessions"`
	Error                 string `json:"error,omitempty"`
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// TaskRecord is the durable row for one routed task. Cloud fields are zero
// for local decisions.
type TaskRecord struct {
	SessionID     string    `json:"session_id"`
	Prompt        string    `json:"prompt"`
	Response      string    `json:"response"`
	LocalModel    string    `json:"local_model_used"`
	LocalQuality  float64   `json:"local_quality_score"`
	CloudModel    string    `json:"cloud_model_used,omitempty"`
	CloudQuality  float64   `json:"cloud_quality_score,omitempty"`
	FinalModel    string    `json:"final_model"`
	Decision      Decision  `json:"upgrade_decision"`
	ActualCost    float64   `json:"actual_cost"`
	PredictedCost float64   `json:"predicted_cost,omitempty"`
	InputTokens   int       `json:"input_tokens,omitempty"`
	OutputTokens  int       `json:"output_tokens,omitempty"`
	ResponseTime  float64   `json:"response_time"`
	Timestamp     time.Time `json:"timestamp"`
}

// TaskSink persists task rows.
type TaskSink interface {
	SaveTask(ctx context.Context, rec TaskRecord) error
}

// SessionSink persists session rows (insert or replace).
type SessionSink interface {
	SaveSession(ctx context.Context, s session.Snapshot) error
}

// Observer is notified after every completed route.
type Observer interface {
	ObserveRoute(ctx context.Context, res *Result, elapsed time.Duration)
}
