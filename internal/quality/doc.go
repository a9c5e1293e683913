// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package quality scores a single model response on a 0-10 scale.
//
// The score is a cheap heuristic (length band, code presence for code
// prompts, visible structure, prompt keyword overlap) and not a learned
// model. Routing thresholds such as the 9.0 target are calibrated against
// this exact formula, so any change to it is a policy change.
package quality
