// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the router packages.
//
// # Key Functions
//
//   - AtomicWriteFile, WriteJSONFile: crash-safe file writes (temp file, fsync, rename)
//   - ClipChars: character (rune) based prefix used for prompt budgets
//   - CharLen: character count matching how prompts and responses are measured
//   - Ellipsize: display-width aware truncation for terminal tables
package util
