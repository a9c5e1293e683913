// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the rigrun command line.
//
// Commands are built with cobra and share one lazily wired set of
// dependencies (config, logger, store, clients) per invocation.
//
// # Commands
//
// Job attempts:
//   - run: k-sample a goal locally, write result.txt and receipt.json
//   - receipts: show recent receipts for a project (--last for the newest)
//   - exemplars: best retry-accepted outputs of a project
//   - oracle show [--free] / oracle refresh: inspect or rewrite the routing table
//
// Tiered routing:
//   - route: route one prompt local-first, with optional auto upgrade
//   - upgrade: rerun a prompt of an existing session on a paid model
//   - chat: interactive REPL (/new, /status, /upgrade, /quit)
//   - stats / sessions / sessions show: cost statistics and session history
//   - serve: HTTP API and job endpoint with metrics and background sweepers
//   - bench: compare local models on a fixed prompt suite
//
// The global --offline flag swaps the cloud client for one that refuses
// every call and requires local endpoints.
//
// # Output
//
// Human output is styled with lipgloss and respects NO_COLOR and --no-color.
// Every command accepts --json for a machine-readable envelope.
//
// # Usage
//
//	func main() {
//	    cli.Execute()
//	}
package cli
