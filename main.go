// rigrun - local-first LLM routing with consensus checks and paid upgrades.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import "github.com/jeranaias/rigrun-router/internal/cli"

func main() {
	cli.Execute()
}
