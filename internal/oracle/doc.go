// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package oracle loads the remote routing table: the list of models an
// escalating job may be pointed at, with prices, privacy tier and per-task
// viability scores.
//
// A Source holds the current table behind an atomic pointer and can watch
// the backing file with fsnotify, swapping in a whole new table on change.
// Readers take one Snapshot per job and never see a partial update.
package oracle
