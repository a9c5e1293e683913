// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"time"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds the session cost model and lifecycle settings.
type Config struct {
	// ContextTransferCost is the one-time dollar cost of moving the
	// conversation context to a cloud model.
	ContextTransferCost float64

	// AverageSessionTasks is the expected number of tasks in a session.
	AverageSessionTasks int

	// SessionContinuationCost is the total extra cost of staying in the
	// cloud for the rest of a session.
	SessionContinuationCost float64

	// ContextLossRisk is reported with upgrade projections.
	ContextLossRisk float64

	// MaxAge is how long an ended session is kept before cleanup.
	MaxAge time.Duration

	// SweepInterval is how often the sweeper runs cleanup.
	SweepInterval time.Duration
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		ContextTransferCost:     0.006,
		AverageSessionTasks:     25,
		SessionContinuationCost: 0.15,
		ContextLossRisk:         0.1,
		MaxAge:                  24 * time.Hour,
		SweepInterval:           10 * time.Minute,
	}
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Tier is the back-end class a session is committed to.
type Tier string

const (
	TierLocal Tier = "local"
	TierCloud Tier = "cloud"
)

// Message is one completed task in a session.
type Message struct {
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Model     string    `json:"model"`
	Cost      float64   `json:"cost"`
	Quality   float64   `json:"quality_score"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is an immutable view of one session. Transition functions return
// new snapshots and never modify their input.
type Snapshot struct {
	ID                 string     `json:"session_id"`
	Tier               Tier       `json:"tier"`
	TotalCost          float64    `json:"total_cost"`
	TaskCount          int        `json:"task_count"`
	Messages           []Message  `json:"messages,omitempty"`
	StartedAt          time.Time  `json:"started_at"`
	EndedAt            *time.Time `json:"ended_at"`
	ContextTransferred bool       `json:"context_transferred"`
}

// New returns a fresh local session.
func New(id string, now time.Time) Snapshot {
	return Snapshot{
		ID:        id,
		Tier:      TierLocal,
		StartedAt: now,
	}
}

// Ended reports whether the session has been ended.
func (s Snapshot) Ended() bool {
	return s.EndedAt != nil
}

// Info is the compact session view returned with routing results.
type Info struct {
	SessionID string  `json:"session_id"`
	Tier      Tier    `json:"tier"`
	TotalCost float64 `json:"total_cost"`
	TaskCount int     `json:"task_count"`
}

// Info returns the compact view of s.
func (s Snapshot) Info() Info {
	return Info{
		SessionID: s.ID,
		Tier:      s.Tier,
		TotalCost: s.TotalCost,
		TaskCount: s.TaskCount,
	}
}

// clone copies the mutable parts of s so the result can be changed freely.
func (s Snapshot) clone() Snapshot {
	out := s
	if s.Messages != nil {
		out.Messages = make([]Message, len(s.Messages), len(s.Messages)+1)
		copy(out.Messages, s.Messages)
	}
	if s.EndedAt != nil {
		ended := *s.EndedAt
		out.EndedAt = &ended
	}
	return out
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Intent is a side effect a transition asks its caller to carry out.
type Intent int

const (
	// IntentPersistTask asks the caller to write the task just added.
	IntentPersistTask Intent = iota + 1
	// IntentPersistSession asks the caller to write the session row.
	IntentPersistSession
)

// String returns the intent name.
func (i Intent) String() string {
	switch i {
	case IntentPersistTask:
		return "persist_task"
	case IntentPersistSession:
		return "persist_session"
	default:
		return "unknown"
	}
}

// AddTask appends msg and adds its cost. Negative costs count as zero.
func AddTask(s Snapshot, msg Message) (Snapshot, []Intent) {
	if msg.Cost < 0 {
		msg.Cost = 0
	}
	next := s.clone()
	next.Messages = append(next.Messages, msg)
	next.TotalCost += msg.Cost
	next.TaskCount++
	return next, []Intent{IntentPersistTask, IntentPersistSession}
}

// UpgradeToCloud moves a local session to the cloud tier and charges the
// context transfer once. A session already in the cloud is returned
// unchanged with no intents.
func UpgradeToCloud(s Snapshot, cfg Config) (Snapshot, []Intent) {
	if s.Tier == TierCloud {
		return s, nil
	}
	next := s.clone()
	next.Tier = TierCloud
	next.ContextTransferred = true
	if cfg.ContextTransferCost > 0 {
		next.TotalCost += cfg.ContextTransferCost
	}
	return next, []Intent{IntentPersistSession}
}

// End marks the session ended at now. Ending twice keeps the first time.
func End(s Snapshot, now time.Time) (Snapshot, []Intent) {
	if s.EndedAt != nil {
		return s, nil
	}
	next := s.clone()
	next.EndedAt = &now
	return next, []Intent{IntentPersistSession}
}

// Coalesce orders intents for execution: every task write first, then at
// most one session write.
func Coalesce(intents ...[]Intent) []Intent {
	var tasks int
	var session bool
	for _, group := range intents {
		for _, in := range group {
			switch in {
			case IntentPersistTask:
				tasks++
			case IntentPersistSession:
				session = true
			}
		}
	}

	out := make([]Intent, 0, tasks+1)
	for i := 0; i < tasks; i++ {
		out = append(out, IntentPersistTask)
	}
	if session {
		out = append(out, IntentPersistSession)
	}
	return out
}

// =============================================================================
// CONTEXT
// =============================================================================

// DefaultContextMessages is the message window used when max is not positive.
const DefaultContextMessages = 10

// ContextMessage is one chat turn rebuilt from session history.
type ContextMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Context returns the last max tasks as user/assistant message pairs.
func Context(s Snapshot, max int) []ContextMessage {
	if max <= 0 {
		max = DefaultContextMessages
	}
	recent := s.Messages
	if len(recent) > max {
		recent = recent[len(recent)-max:]
	}

	out := make([]ContextMessage, 0, len(recent)*2)
	for _, m := range recent {
		out = append(out,
			ContextMessage{Role: "user", Content: m.Prompt},
			ContextMessage{Role: "assistant", Content: m.Response},
		)
	}
	return out
}
