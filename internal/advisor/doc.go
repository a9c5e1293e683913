// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package advisor prices cloud upgrades for a prompt and ranks them by cost
// per quality point gained over the local answer.
//
// Token counts are estimated from word count (input = words * 1.3, output =
// input * 2). The estimator is deliberately crude and the 0.5 gain filter is
// calibrated against it.
package advisor
