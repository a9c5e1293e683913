// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jeranaias/rigrun-router/internal/attempt"
)

// JobsPath is the job attempt endpoint.
const JobsPath = "/api/v1/jobs"

// JobRunner runs jobs through local consensus and the schema gate.
type JobRunner interface {
	RunReport(ctx context.Context, job attempt.Job) (attempt.Report, error)
}

// WithJobs serves POST /api/v1/jobs on j.
func WithJobs(j JobRunner) Option {
	return func(s *Server) {
		s.jobs = j
	}
}

// JobRequest is the body of POST /api/v1/jobs. Schema is an inline JSON
// schema document.
type JobRequest struct {
	Goal        string          `json:"goal"`
	Project     string          `json:"project,omitempty"`
	Context     string          `json:"context,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
	BudgetCents int             `json:"budget_cents,omitempty"`
	AllowRemote bool            `json:"allow_remote,omitempty"`
}

// JobResponse reports the outcome of one job.
type JobResponse struct {
	JobID   string          `json:"job_id"`
	Outcome string          `json:"outcome"`
	Summary string          `json:"summary"`
	Target  string          `json:"target,omitempty"`
	Output  string          `json:"output"`
	Receipt attempt.Receipt `json:"receipt"`
}

func (s *Server) handleJob(c *gin.Context) {
	if s.jobs == nil {
		RespondError(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "job runner is not configured")
		return
	}
	var req JobRequest
	if !bindJSON(c, &req) {
		return
	}
	switch {
	case req.Goal == "":
		RespondError(c, http.StatusBadRequest, ErrCodeBadRequest, "goal is required")
		return
	case len(req.Goal)+len(req.Context) > MaxPromptLength:
		RespondError(c, http.StatusBadRequest, ErrCodeBadRequest, "goal and context exceed the maximum prompt length")
		return
	case req.BudgetCents < 0:
		RespondError(c, http.StatusBadRequest, ErrCodeBadRequest, "budget_cents must not be negative")
		return
	case req.AllowRemote && s.cfg.Offline:
		RespondError(c, http.StatusBadRequest, ErrCodeBadRequest, "allow_remote is disabled in offline mode")
		return
	}
	if req.Project == "" {
		req.Project = "default"
	}

	job := attempt.Job{
		ID:          uuid.NewString()[:8],
		Project:     req.Project,
		Goal:        req.Goal,
		Context:     req.Context,
		BudgetCents: req.BudgetCents,
		AllowRemote: req.AllowRemote,
	}
	if len(req.Schema) > 0 {
		job.Schema = []byte(req.Schema)
	}

	report, err := s.jobs.RunReport(c.Request.Context(), job)
	if err != nil {
		respondErr(c, err)
		return
	}

	resp := JobResponse{
		JobID:   job.ID,
		Outcome: report.Outcome.Reason(),
		Summary: attempt.Summary(report.Outcome),
		Output:  report.Outcome.Text(),
		Receipt: report.Receipt,
	}
	if esc, ok := report.Outcome.(attempt.EscalationSuggested); ok {
		resp.Target = esc.Target
	}
	c.JSON(http.StatusOK, resp)
}
