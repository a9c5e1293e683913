// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jeranaias/rigrun-router/internal/attempt"
	"github.com/jeranaias/rigrun-router/internal/consensus"
)

// DefaultTail is the number of receipts TailReceipts returns for n <= 0.
const DefaultTail = 50

// =============================================================================
// RECEIPTS
// =============================================================================

// SaveReceipt appends r to the ledger.
func (s *Store) SaveReceipt(ctx context.Context, r attempt.Receipt) error {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	errs := r.ValidationErrors
	if errs == nil {
		errs = []string{}
	}
	errsJSON, err := json.Marshal(errs)
	if err != nil {
		return err
	}
	rounds := r.Rounds
	if rounds == nil {
		rounds = []consensus.VoteResult{}
	}
	votesJSON, err := json.Marshal(rounds)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO receipts
		(ts, project, job_id, cost_cents, latency_s, tier, model_path, why,
		 template_version, validation_errors, consensus_votes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.Unix(), r.Project, r.JobID, r.CostCents, r.LatencySeconds, r.Tier,
		r.ModelPath, r.Why, r.TemplateVersion, string(errsJSON), string(votesJSON),
	)
	if err != nil {
		return dbErr("save receipt", err)
	}
	return nil
}

const receiptSelect = `
	SELECT ts, project, job_id, cost_cents, latency_s, tier, model_path, why,
	       template_version, validation_errors, consensus_votes
	FROM receipts`

// LastReceipt returns the most recent receipt of any project.
func (s *Store) LastReceipt(ctx context.Context) (attempt.Receipt, error) {
	row := s.db.QueryRowContext(ctx, receiptSelect+` ORDER BY id DESC LIMIT 1`)
	r, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return attempt.Receipt{}, ErrNotFound
	}
	if err != nil {
		return attempt.Receipt{}, dbErr("last receipt", err)
	}
	return r, nil
}

// TailReceipts returns up to n receipts for project, newest first.
func (s *Store) TailReceipts(ctx context.Context, project string, n int) ([]attempt.Receipt, error) {
	if n <= 0 {
		n = DefaultTail
	}
	rows, err := s.db.QueryContext(ctx, receiptSelect+` WHERE project = ? ORDER BY id DESC LIMIT ?`, project, n)
	if err != nil {
		return nil, dbErr("tail receipts", err)
	}
	defer rows.Close()

	var out []attempt.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, dbErr("scan receipt", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReceipt(sc scanner) (attempt.Receipt, error) {
	var (
		r         attempt.Receipt
		ts        sql.NullInt64
		version   sql.NullString
		errsJSON  sql.NullString
		votesJSON sql.NullString
	)
	err := sc.Scan(&ts, &r.Project, &r.JobID, &r.CostCents, &r.LatencySeconds,
		&r.Tier, &r.ModelPath, &r.Why, &version, &errsJSON, &votesJSON)
	if err != nil {
		return attempt.Receipt{}, err
	}

	if ts.Valid {
		r.Timestamp = time.Unix(ts.Int64, 0)
	}
	r.TemplateVersion = version.String
	r.ValidationErrors = []string{}
	if errsJSON.Valid && errsJSON.String != "" {
		if err := json.Unmarshal([]byte(errsJSON.String), &r.ValidationErrors); err != nil {
			return attempt.Receipt{}, err
		}
	}
	r.Rounds = []consensus.VoteResult{}
	if votesJSON.Valid && votesJSON.String != "" {
		if err := json.Unmarshal([]byte(votesJSON.String), &r.Rounds); err != nil {
			return attempt.Receipt{}, err
		}
	}
	return r, nil
}

// =============================================================================
// EXEMPLARS
// =============================================================================

// ExemplarRow is a stored exemplar with its bookkeeping columns.
type ExemplarRow struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UsedCount int       `json:"used_count"`
	attempt.Exemplar
}

// SaveExemplar stores a retry-accepted output.
func (s *Store) SaveExemplar(ctx context.Context, e attempt.Exemplar) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prompt_examples
		(job_id, project, input_goal, input_context, output_json, schema_path,
		 quality_score, consensus_agreement, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.JobID, e.Project, e.Goal, e.Context, e.Output, nullString(e.SchemaPath),
		e.Quality, e.ConsensusAgreement, s.now().Unix(),
	)
	if err != nil {
		return dbErr("save exemplar", err)
	}
	return nil
}

// TopExemplars returns up to n exemplars for project, best quality first,
// and counts them as used.
func (s *Store) TopExemplars(ctx context.Context, project string, n int) ([]ExemplarRow, error) {
	if n <= 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, dbErr("begin", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, created_at, used_count, job_id, project, input_goal, input_context,
		       output_json, schema_path, quality_score, consensus_agreement
		FROM prompt_examples
		WHERE project = ?
		ORDER BY quality_score DESC, consensus_agreement DESC, id DESC
		LIMIT ?`, project, n)
	if err != nil {
		return nil, dbErr("top exemplars", err)
	}

	var out []ExemplarRow
	for rows.Next() {
		var (
			e                     ExemplarRow
			created               sql.NullInt64
			goal, ctxText, output sql.NullString
			schemaPath            sql.NullString
		)
		if err := rows.Scan(&e.ID, &created, &e.UsedCount, &e.JobID, &e.Project,
			&goal, &ctxText, &output, &schemaPath, &e.Quality, &e.ConsensusAgreement); err != nil {
			rows.Close()
			return nil, dbErr("scan exemplar", err)
		}
		if created.Valid {
			e.CreatedAt = time.Unix(created.Int64, 0)
		}
		e.Goal, e.Context, e.Output, e.SchemaPath = goal.String, ctxText.String, output.String, schemaPath.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, dbErr("top exemplars", err)
	}
	rows.Close()

	for i := range out {
		if _, err := tx.ExecContext(ctx, `UPDATE prompt_examples SET used_count = used_count + 1 WHERE id = ?`, out[i].ID); err != nil {
			return nil, dbErr("mark exemplar used", err)
		}
		out[i].UsedCount++
	}
	if err := tx.Commit(); err != nil {
		return nil, dbErr("commit", err)
	}
	return out, nil
}

// =============================================================================
// PROMPT TEMPLATES
// =============================================================================

// EnsureTemplate records template text under version and makes it the only
// active version. Existing text for the version is kept.
func (s *Store) EnsureTemplate(ctx context.Context, version, text string) error {
	body, err := json.Marshal(map[string]string{"template": text})
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbErr("begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO prompt_templates (version, created_at, template_json) VALUES (?, ?, ?)`,
		version, s.now().Unix(), string(body)); err != nil {
		return dbErr("insert template", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE prompt_templates SET is_active = CASE WHEN version = ? THEN 1 ELSE 0 END`, version); err != nil {
		return dbErr("activate template", err)
	}
	if err := tx.Commit(); err != nil {
		return dbErr("commit", err)
	}
	return nil
}

// ActiveTemplate returns the active template version and its text.
func (s *Store) ActiveTemplate(ctx context.Context) (version, text string, err error) {
	var body string
	err = s.db.QueryRowContext(ctx,
		`SELECT version, template_json FROM prompt_templates WHERE is_active = 1 LIMIT 1`).Scan(&version, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", dbErr("active template", err)
	}

	var doc map[string]string
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return "", "", err
	}
	return version, doc["template"], nil
}
