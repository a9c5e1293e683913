// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package benchmark compares local models on a fixed prompt suite.
//
// Each test prompt is sent once per model through the same generator the
// router uses. Answers are rated with the router's quality heuristic, so a
// model that benchmarks above the quality target is one the router would
// accept without offering an upgrade.
//
// # Usage
//
//	runner := benchmark.NewRunner(ollamaClient, benchmark.WithTarget(9.0))
//	cmp, err := runner.RunComparison(ctx, []string{"llama3.2:3b", "qwen2.5:7b"})
//	best, _ := cmp.BestModel()
package benchmark
