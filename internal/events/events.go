// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/rigrun-router/internal/attempt"
	"github.com/jeranaias/rigrun-router/internal/router"
)

// Event types.
const (
	TypeRoute   = "route"
	TypeAttempt = "attempt"
)

// Version is the event envelope version.
const Version = "1.0"

// DefaultChannel is the Pub/Sub channel used when none is configured.
const DefaultChannel = "rigrun:v1:decisions"

// Event is the JSON envelope published for every decision.
type Event struct {
	Version   string         `json:"version"`
	Type      string         `json:"type"`
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Publisher sends events somewhere.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NewEvent stamps an envelope around data.
func NewEvent(typ string, data map[string]any) Event {
	return Event{
		Version:   Version,
		Type:      typ,
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
}

// RouteEvent describes a completed route. Prompt and response text are not
// included.
func RouteEvent(res *router.Result, elapsed time.Duration) Event {
	data := map[string]any{
		"session_id": res.Session.SessionID,
		"status":     string(res.Status),
		"model":      res.Model,
		"quality":    res.Quality,
		"cost":       res.Cost,
		"elapsed_s":  elapsed.Seconds(),
	}
	if len(res.UpgradeOptions) > 0 {
		data["upgrade_options"] = len(res.UpgradeOptions)
		data["best_option"] = res.UpgradeOptions[0].Model
	}
	return NewEvent(TypeRoute, data)
}

// AttemptEvent describes a finished job.
func AttemptEvent(job attempt.Job, o attempt.Outcome, elapsed time.Duration) Event {
	data := map[string]any{
		"job_id":    job.ID,
		"project":   job.Project,
		"summary":   attempt.Summary(o),
		"reason":    o.Reason(),
		"elapsed_s": elapsed.Seconds(),
	}
	if esc, ok := o.(attempt.EscalationSuggested); ok {
		data["target"] = esc.Target
	}
	return NewEvent(TypeAttempt, data)
}

// =============================================================================
// NOP
// =============================================================================

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

func (Nop) ObserveRoute(context.Context, *router.Result, time.Duration) {}

func (Nop) ObserveOutcome(context.Context, attempt.Job, attempt.Outcome, time.Duration) {}
