// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSessionNotFound is returned for an unknown or expired session id.
var ErrSessionNotFound = errors.New("session not found")

// =============================================================================
// SESSION MANAGER
// =============================================================================

// Manager holds the live snapshot for every session id. The map is guarded
// by a mutex and Apply runs a transition under it, so two callers on one
// session id are serialized.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]Snapshot

	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// NewManager creates an empty session manager.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]Snapshot),
		cfg:      cfg,
		logger:   logger.Named("session"),
		now:      time.Now,
	}
}

// Config returns the cost model the manager was built with.
func (m *Manager) Config() Config {
	return m.cfg
}

// Create registers a new local session with a random id.
func (m *Manager) Create() Snapshot {
	s := New(uuid.NewString(), m.now())

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Debug("session created", zap.String("session_id", s.ID))
	return s
}

// Restore registers a snapshot loaded from storage so a session can be
// continued by a later process. A live session with the same id wins and is
// returned unchanged.
func (m *Manager) Restore(s Snapshot) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if live, ok := m.sessions[s.ID]; ok {
		return live
	}
	s = s.clone()
	m.sessions[s.ID] = s
	m.logger.Debug("session restored", zap.String("session_id", s.ID))
	return s
}

// Get returns the current snapshot for id.
func (m *Manager) Get(id string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Apply runs fn on the current snapshot for id and stores the result. fn
// must be a pure transition.
func (m *Manager) Apply(id string, fn func(Snapshot) (Snapshot, []Intent)) (Snapshot, []Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Snapshot{}, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	next, intents := fn(s)
	m.sessions[id] = next
	return next, intents, nil
}

// End marks the session ended.
func (m *Manager) End(id string) (Snapshot, []Intent, error) {
	now := m.now()
	s, intents, err := m.Apply(id, func(s Snapshot) (Snapshot, []Intent) {
		return End(s, now)
	})
	if err != nil {
		return Snapshot{}, nil, err
	}
	m.logger.Debug("session ended",
		zap.String("session_id", id),
		zap.Int("task_count", s.TaskCount),
		zap.Float64("total_cost", s.TotalCost),
	)
	return s, intents, nil
}

// Count returns the number of tracked sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// List returns every tracked snapshot, newest first.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	out := make([]Snapshot, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// =============================================================================
// CLEANUP
// =============================================================================

// CleanupOld drops sessions that ended more than maxAge ago and returns how
// many were removed. Sessions that never ended are kept.
func (m *Manager) CleanupOld(maxAge time.Duration) int {
	now := m.now()

	m.mu.Lock()
	removed := 0
	for id, s := range m.sessions {
		if s.EndedAt != nil && now.Sub(*s.EndedAt) > maxAge {
			delete(m.sessions, id)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Info("expired sessions removed", zap.Int("count", removed))
	}
	return removed
}

// StartSweeper runs CleanupOld every interval until ctx is done or the
// returned stop function is called. stop waits for the sweeper to exit.
func (m *Manager) StartSweeper(ctx context.Context, interval, maxAge time.Duration) (stop func()) {
	if interval <= 0 {
		interval = m.cfg.SweepInterval
	}
	if maxAge <= 0 {
		maxAge = m.cfg.MaxAge
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CleanupOld(maxAge)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// FormatDuration returns a short human-readable duration such as "4m 12s".
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		if secs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm %ds", mins, secs)
	default:
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
}
