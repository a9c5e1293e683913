// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session tracks the cost and quality history of one conversation
// and projects what committing the rest of it to the cloud would cost.
//
// # Key Types
//
//   - Snapshot: immutable view of a session (tier, totals, messages)
//   - Intent: side effect a transition asks the caller to perform
//   - Analysis: cost projection for a contemplated upgrade
//   - Manager: id-keyed registry of live snapshots with a TTL sweeper
//
// # Transitions
//
// Sessions change only through pure functions that take a Snapshot and
// return a new one plus the persistence intents the change implies:
//
//	next, intents := session.AddTask(s, msg)
//	next, intents = session.UpgradeToCloud(next, cfg)
//
// Tier moves from local to cloud at most once. TotalCost and TaskCount never
// decrease and Messages is append-only.
//
// # Session Premium
//
// While a session is still local, Analyze reports the full-session cost of
// upgrading: cost_per_task = upgrade + continuation/avg_tasks, total =
// transfer + avg_tasks * cost_per_task, premium = total / upgrade. A single
// task price looks cheap; the premium shows what the commitment costs.
package session
