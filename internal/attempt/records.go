// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attempt

import (
	"context"
	"time"

	"github.com/jeranaias/rigrun-router/internal/consensus"
	"github.com/jeranaias/rigrun-router/internal/oracle"
)

// ============================================================================
// JOB AND POLICY
// ============================================================================

// Job is one unit of work for the pipeline.
type Job struct {
	ID      string
	Project string
	Goal    string
	Context string

	// Schema is an optional JSON schema document the output must match.
	Schema []byte
	// SchemaPath is recorded on exemplars when the schema came from a file.
	SchemaPath string

	// BudgetCents and AllowRemote must both be set for escalation to be
	// suggested.
	BudgetCents int
	AllowRemote bool
}

// Policy controls sampling and the consensus gate.
type Policy struct {
	KSamples    int
	Threshold   float64
	Model       string
	Temperature float64
}

// DefaultPolicy returns k=3, threshold 0.67 at temperature 0.2.
func DefaultPolicy() Policy {
	return Policy{
		KSamples:    3,
		Threshold:   0.67,
		Model:       "llama3.2:3b",
		Temperature: 0.2,
	}
}

// ============================================================================
// RECORDS AND SINKS
// ============================================================================

// Receipt is the append-only record written for every finished job.
type Receipt struct {
	Timestamp        time.Time              `json:"when"`
	Project          string                 `json:"project"`
	JobID            string                 `json:"job_id"`
	CostCents        int                    `json:"cost_cents"`
	LatencySeconds   float64                `json:"latency_s"`
	Tier             string                 `json:"tier"`
	ModelPath        string                 `json:"model_path"`
	Why              string                 `json:"why"`
	TemplateVersion  string                 `json:"template_version"`
	ValidationErrors []string               `json:"validation_errors"`
	Rounds           []consensus.VoteResult `json:"consensus_votes"`
}

// Exemplar is a retry-accepted output kept for few-shot prompting.
type Exemplar struct {
	JobID              string  `json:"job_id"`
	Project            string  `json:"project"`
	Goal               string  `json:"input_goal"`
	Context            string  `json:"input_context"`
	Output             string  `json:"output_json"`
	SchemaPath         string  `json:"schema_path"`
	Quality            float64 `json:"quality_score"`
	ConsensusAgreement float64 `json:"consensus_agreement"`
}

// ReceiptSink stores receipts. The pipeline never reads them back.
type ReceiptSink interface {
	SaveReceipt(ctx context.Context, r Receipt) error
}

// ExemplarSink stores exemplars.
type ExemplarSink interface {
	SaveExemplar(ctx context.Context, e Exemplar) error
}

// RoutingTable supplies the remote routing table consulted on escalation.
type RoutingTable interface {
	Snapshot() oracle.Table
}

// Observer is told about every finished job.
type Observer interface {
	ObserveOutcome(ctx context.Context, job Job, outcome Outcome, elapsed time.Duration)
}
