// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides SQLite persistence for receipts and routing.
//
// One database file holds both the job attempt ledger and the routing
// history:
//
//   - receipts: one append-only row per finished job attempt
//   - prompt_templates: prompt template versions, one active
//   - prompt_examples: retry-accepted outputs kept for few-shot prompting
//   - sessions: one row per routing session (insert or replace)
//   - tasks: one row per routed prompt
//
// # Usage
//
//	store, err := storage.Open(ctx, "out/receipts.sqlite")
//	defer store.Close()
//	pipeline := attempt.NewPipeline(gen, policy,
//	    attempt.WithReceiptSink(store), attempt.WithExemplarSink(store))
//
// Store implements attempt.ReceiptSink, attempt.ExemplarSink,
// router.TaskSink and router.SessionSink. Timestamps are stored as unix
// seconds.
package storage
