// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package consensus picks a majority answer out of k independent samples.
//
// Candidates are compared on a normalized form: JSON documents are
// canonicalized (sorted keys, compact separators) so key order does not split
// the vote, and free text has its whitespace collapsed. The winner returned to
// callers is always one of the original, un-normalized candidates.
//
// # Usage
//
//	res, err := consensus.Vote(samples)
//	if err != nil {
//	    return err
//	}
//	if !res.Meets(threshold) {
//	    // low consensus
//	}
package consensus
