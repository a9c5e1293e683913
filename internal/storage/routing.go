// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jeranaias/rigrun-router/internal/router"
	"github.com/jeranaias/rigrun-router/internal/session"
)

// Listing defaults.
const (
	DefaultRecentSessions = 10
	DefaultStatsDays      = 7
)

// =============================================================================
// SESSIONS
// =============================================================================

// SessionRow is the stored form of a session.
type SessionRow struct {
	SessionID string     `json:"session_id"`
	Tier      string     `json:"tier"`
	TotalCost float64    `json:"total_cost"`
	TaskCount int        `json:"task_count"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
}

// Snapshot rebuilds a session without its message history. A cloud tier
// implies the context was already transferred.
func (r SessionRow) Snapshot() session.Snapshot {
	snap := session.New(r.SessionID, r.StartedAt)
	snap.Tier = session.Tier(r.Tier)
	snap.TotalCost = r.TotalCost
	snap.TaskCount = r.TaskCount
	snap.ContextTransferred = snap.Tier == session.TierCloud
	if r.EndedAt != nil {
		ended := *r.EndedAt
		snap.EndedAt = &ended
	}
	return snap
}

// SaveSession inserts or replaces the row for s.
func (s *Store) SaveSession(ctx context.Context, snap session.Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions
		(session_id, tier, total_cost, task_count, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ID, string(snap.Tier), snap.TotalCost, snap.TaskCount,
		snap.StartedAt.Unix(), unixOrNull(snap.EndedAt),
	)
	if err != nil {
		return dbErr("save session", err)
	}
	return nil
}

const sessionSelect = `SELECT session_id, tier, total_cost, task_count, started_at, ended_at FROM sessions`

// GetSession returns the stored row for id.
func (s *Store) GetSession(ctx context.Context, id string) (SessionRow, error) {
	row := s.db.QueryRowContext(ctx, sessionSelect+` WHERE session_id = ?`, id)
	r, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRow{}, ErrNotFound
	}
	if err != nil {
		return SessionRow{}, dbErr("get session", err)
	}
	return r, nil
}

// RecentSessions returns up to limit sessions, most recently started first.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]SessionRow, error) {
	if limit <= 0 {
		limit = DefaultRecentSessions
	}
	rows, err := s.db.QueryContext(ctx, sessionSelect+` ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, dbErr("recent sessions", err)
	}
	defer rows.Close()

	out := []SessionRow{}
	for rows.Next() {
		r, err := scanSession(rows)
		if err != nil {
			return nil, dbErr("scan session", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanSession(sc scanner) (SessionRow, error) {
	var (
		r       SessionRow
		started int64
		ended   sql.NullInt64
	)
	if err := sc.Scan(&r.SessionID, &r.Tier, &r.TotalCost, &r.TaskCount, &started, &ended); err != nil {
		return SessionRow{}, err
	}
	r.StartedAt = time.Unix(started, 0)
	r.EndedAt = timeFromNull(ended)
	return r, nil
}

// =============================================================================
// TASKS
// =============================================================================

// SaveTask appends a routed task.
func (s *Store) SaveTask(ctx context.Context, t router.TaskRecord) error {
	ts := t.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	var cloudQuality, predicted, inTok, outTok any
	if t.CloudModel != "" {
		cloudQuality = t.CloudQuality
		inTok = t.InputTokens
		outTok = t.OutputTokens
	}
	if t.PredictedCost > 0 {
		predicted = t.PredictedCost
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks
		(session_id, prompt, response, local_model_used, local_quality_score,
		 cloud_model_used, cloud_quality_score, final_model, upgrade_decision,
		 actual_cost, predicted_cost, input_tokens, output_tokens, response_time, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.SessionID, t.Prompt, t.Response, nullString(t.LocalModel), t.LocalQuality,
		nullString(t.CloudModel), cloudQuality, t.FinalModel, string(t.Decision),
		t.ActualCost, predicted, inTok, outTok, t.ResponseTime, ts.Unix(),
	)
	if err != nil {
		return dbErr("save task", err)
	}
	return nil
}

// SessionTasks returns the tasks of session id in the order they ran.
func (s *Store) SessionTasks(ctx context.Context, id string) ([]router.TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, prompt, response, local_model_used, local_quality_score,
		       cloud_model_used, cloud_quality_score, final_model, upgrade_decision,
		       actual_cost, predicted_cost, input_tokens, output_tokens, response_time, timestamp
		FROM tasks
		WHERE session_id = ?
		ORDER BY timestamp ASC, id ASC`, id)
	if err != nil {
		return nil, dbErr("session tasks", err)
	}
	defer rows.Close()

	out := []router.TaskRecord{}
	for rows.Next() {
		var (
			t            router.TaskRecord
			localModel   sql.NullString
			localQuality sql.NullFloat64
			cloudModel   sql.NullString
			cloudQuality sql.NullFloat64
			decision     string
			predicted    sql.NullFloat64
			inTok        sql.NullInt64
			outTok       sql.NullInt64
			respTime     sql.NullFloat64
			ts           int64
		)
		if err := rows.Scan(&t.SessionID, &t.Prompt, &t.Response, &localModel, &localQuality,
			&cloudModel, &cloudQuality, &t.FinalModel, &decision,
			&t.ActualCost, &predicted, &inTok, &outTok, &respTime, &ts); err != nil {
			return nil, dbErr("scan task", err)
		}
		t.LocalModel = localModel.String
		t.LocalQuality = localQuality.Float64
		t.CloudModel = cloudModel.String
		t.CloudQuality = cloudQuality.Float64
		t.Decision = router.Decision(decision)
		t.PredictedCost = predicted.Float64
		t.InputTokens = int(inTok.Int64)
		t.OutputTokens = int(outTok.Int64)
		t.ResponseTime = respTime.Float64
		t.Timestamp = time.Unix(ts, 0)
		out = append(out, t)
	}
	return out, rows.Err()
}

// =============================================================================
// STATISTICS
// =============================================================================

// CostStats summarizes tasks over a trailing window.
type CostStats struct {
	Days       int     `json:"days"`
	TotalTasks int     `json:"total_tasks"`
	TotalCost  float64 `json:"total_cost"`
	AvgCost    float64 `json:"avg_cost"`
	CloudTasks int     `json:"cloud_tasks"`
	LocalTasks int     `json:"local_tasks"`
}

// CostStats returns task counts and spend for the last days days.
func (s *Store) CostStats(ctx context.Context, days int) (CostStats, error) {
	if days <= 0 {
		days = DefaultStatsDays
	}
	since := s.now().Add(-time.Duration(days) * 24 * time.Hour).Unix()

	st := CostStats{Days: days}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(actual_cost), 0),
			COALESCE(AVG(actual_cost), 0),
			COALESCE(SUM(CASE WHEN upgrade_decision = 'cloud' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN upgrade_decision = 'local' THEN 1 ELSE 0 END), 0)
		FROM tasks
		WHERE timestamp >= ?`, since,
	).Scan(&st.TotalTasks, &st.TotalCost, &st.AvgCost, &st.CloudTasks, &st.LocalTasks)
	if err != nil {
		return CostStats{}, dbErr("cost stats", err)
	}
	return st, nil
}
