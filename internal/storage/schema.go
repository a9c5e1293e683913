// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

// Schema creates every table. Columns added after the first release are
// applied by migrations instead.
const Schema = `
-- Job attempt ledger
CREATE TABLE IF NOT EXISTS receipts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ts INTEGER,                 -- Unix timestamp
    project TEXT,
    job_id TEXT,
    cost_cents INTEGER,
    latency_s REAL,
    tier TEXT,
    model_path TEXT,
    why TEXT
);

-- Prompt template versions
CREATE TABLE IF NOT EXISTS prompt_templates (
    version TEXT PRIMARY KEY,
    created_at INTEGER DEFAULT (strftime('%s', 'now')),
    template_json TEXT NOT NULL,
    parent_version TEXT,
    improvement_reason TEXT,
    is_active INTEGER DEFAULT 0,
    performance_metrics TEXT
);

-- Few-shot exemplars from retry-accepted jobs
CREATE TABLE IF NOT EXISTS prompt_examples (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id TEXT NOT NULL,
    project TEXT NOT NULL,
    input_goal TEXT,
    input_context TEXT,
    output_json TEXT,
    schema_path TEXT,
    quality_score REAL,
    consensus_agreement REAL,
    created_at INTEGER DEFAULT (strftime('%s', 'now')),
    used_count INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_examples_project_quality ON prompt_examples(project, quality_score DESC);

-- Routing sessions
CREATE TABLE IF NOT EXISTS sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT UNIQUE NOT NULL,
    tier TEXT NOT NULL,
    total_cost REAL NOT NULL,
    task_count INTEGER NOT NULL,
    started_at INTEGER NOT NULL, -- Unix timestamp
    ended_at INTEGER,            -- Unix timestamp, NULL while open
    created_at INTEGER DEFAULT (strftime('%s', 'now'))
);

-- Routed prompts
CREATE TABLE IF NOT EXISTS tasks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    prompt TEXT NOT NULL,
    response TEXT NOT NULL,
    local_model_used TEXT,
    local_quality_score REAL,
    cloud_model_used TEXT,
    cloud_quality_score REAL,
    final_model TEXT NOT NULL,
    upgrade_decision TEXT NOT NULL,
    actual_cost REAL NOT NULL,
    predicted_cost REAL,
    input_tokens INTEGER,
    output_tokens INTEGER,
    response_time REAL,
    timestamp INTEGER NOT NULL   -- Unix timestamp
);

CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
CREATE INDEX IF NOT EXISTS idx_tasks_session_id ON tasks(session_id);
CREATE INDEX IF NOT EXISTS idx_tasks_timestamp ON tasks(timestamp);
`

// receiptColumns are added to receipts tables created before they existed.
var receiptColumns = []struct {
	name string
	ddl  string
}{
	{"template_version", "ALTER TABLE receipts ADD COLUMN template_version TEXT DEFAULT '1.0'"},
	{"validation_errors", "ALTER TABLE receipts ADD COLUMN validation_errors TEXT"},
	{"consensus_votes", "ALTER TABLE receipts ADD COLUMN consensus_votes TEXT"},
}

// receiptIndexes need the migrated columns.
const receiptIndexes = `
CREATE INDEX IF NOT EXISTS idx_receipts_template_version ON receipts(template_version);
CREATE INDEX IF NOT EXISTS idx_receipts_project_ts ON receipts(project, ts);
`
