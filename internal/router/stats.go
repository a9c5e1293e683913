// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"fmt"
	"sync"
)

// ============================================================================
// ROUTING STATISTICS
// ============================================================================

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	// TotalRoutes is the number of routed prompts.
	TotalRoutes int `json:"total_routes"`
	// LocalRoutes is the number answered locally at target quality.
	LocalRoutes int `json:"local_routes"`
	// LimitedRoutes is the number returned with upgrade options.
	LimitedRoutes int `json:"limited_routes"`
	// CloudRoutes is the number answered by a paid model.
	CloudRoutes int `json:"cloud_routes"`
	// TotalCost is the cumulative cloud spend in dollars.
	TotalCost float64 `json:"total_cost"`
	// SavedCost is the estimated spend avoided by answering locally.
	SavedCost float64 `json:"saved_cost"`
	// TotalInputTokens is the cumulative cloud input tokens.
	TotalInputTokens int `json:"total_input_tokens"`
	// TotalOutputTokens is the cumulative cloud output tokens.
	TotalOutputTokens int `json:"total_output_tokens"`
}

// Stats tracks cumulative routing statistics. Safe for concurrent use.
type Stats struct {
	mu sync.RWMutex
	s  StatsSnapshot
}

// NewStats creates an empty Stats.
func NewStats() *Stats {
	return &Stats{}
}

// Record adds one routing result. avoided is the estimated cloud cost of
// the prompt, counted as saved when the answer stayed local.
func (s *Stats) Record(res *Result, avoided float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.s.TotalRoutes++
	switch res.Status {
	case StatusCloudSuccess:
		s.s.CloudRoutes++
		s.s.TotalCost += res.Cost
		s.s.TotalInputTokens += res.inputTokens
		s.s.TotalOutputTokens += res.outputTokens
	case StatusLocalLimited:
		s.s.LimitedRoutes++
		s.s.SavedCost += avoided
	default:
		s.s.LocalRoutes++
		s.s.SavedCost += avoided
	}
}

// Snapshot returns a copy of the current statistics.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.s
}

// Reset clears all statistics.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.s = StatsSnapshot{}
}

// Summary returns a human-readable summary of the statistics.
func (s StatsSnapshot) Summary() string {
	if s.TotalRoutes == 0 {
		return "No prompts routed yet"
	}

	local := float64(s.LocalRoutes+s.LimitedRoutes) / float64(s.TotalRoutes) * 100
	cloud := float64(s.CloudRoutes) / float64(s.TotalRoutes) * 100

	return fmt.Sprintf(
		"Routing Stats: %d prompts (%.0f%% local, %.0f%% cloud) | Cost: $%.4f | Saved: $%.4f",
		s.TotalRoutes, local, cloud, s.TotalCost, s.SavedCost,
	)
}

// CostEfficiencyPercent returns the share of the all-cloud cost actually
// spent. Lower is better; 0 when nothing was routed.
func (s StatsSnapshot) CostEfficiencyPercent() float64 {
	all := s.TotalCost + s.SavedCost
	if all == 0 {
		return 0
	}
	return s.TotalCost / all * 100
}
