// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package consensus

import (
	"errors"
	"math"
)

// ErrNoCandidates is returned when Vote is called with nothing to vote on.
var ErrNoCandidates = errors.New("consensus: no candidates")

// VoteResult is the outcome of a majority vote.
type VoteResult struct {
	// Winner is the first original candidate in the majority group.
	Winner string `json:"-"`
	// Agreement is the majority group size divided by the candidate count.
	Agreement float64 `json:"agreement"`
	// Counts holds the size of every distinct group in first-seen order.
	Counts []int `json:"counts"`
	// Samples is the number of candidates that voted.
	Samples int `json:"k"`
}

// Vote groups candidates by their normalized form and returns the largest
// group. Ties go to the group seen first.
func Vote(candidates []string) (VoteResult, error) {
	if len(candidates) == 0 {
		return VoteResult{}, ErrNoCandidates
	}

	keys := make([]string, len(candidates))
	index := make(map[string]int, len(candidates))
	var order []string
	var counts []int

	for i, c := range candidates {
		key := Normalize(c)
		keys[i] = key
		if j, ok := index[key]; ok {
			counts[j]++
			continue
		}
		index[key] = len(order)
		order = append(order, key)
		counts = append(counts, 1)
	}

	best := 0
	for i := 1; i < len(counts); i++ {
		if counts[i] > counts[best] {
			best = i
		}
	}

	winner := candidates[0]
	for i, key := range keys {
		if key == order[best] {
			winner = candidates[i]
			break
		}
	}

	return VoteResult{
		Winner:    winner,
		Agreement: float64(counts[best]) / float64(len(candidates)),
		Counts:    counts,
		Samples:   len(candidates),
	}, nil
}

// Meets reports whether the agreement reaches threshold. Agreement is compared
// at two-decimal precision, so two of three samples (0.667) meets 0.67 and
// 179 of 200 (0.895) meets 0.9. Rounding never lifts a split vote to 1.00: a
// threshold of 1 requires every sample to agree.
func (r VoteResult) Meets(threshold float64) bool {
	a := math.Round(r.Agreement*100) / 100
	if r.Agreement < 1 && a >= 1 {
		a = 0.99
	}
	return a >= threshold
}
