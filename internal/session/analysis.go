// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

// Analysis status values.
const (
	StatusInCloudSession     = "in_cloud_session"
	StatusConsideringUpgrade = "considering_upgrade"
)

// Analysis is the session-level cost view for one contemplated upgrade.
// Exactly one of the projections is set, matching Status.
type Analysis struct {
	Status string `json:"status"`

	*CloudProjection
	*UpgradeProjection
}

// CloudProjection is reported for sessions already in the cloud.
type CloudProjection struct {
	CurrentTaskCost  float64 `json:"current_task_cost"`
	SessionCostSoFar float64 `json:"session_cost_so_far"`
	TaskNumber       int     `json:"task_number"`
	ProjectedTotal   float64 `json:"projected_total"`
}

// UpgradeProjection is reported for local sessions weighing a first upgrade.
type UpgradeProjection struct {
	SingleTaskCost        float64 `json:"single_task_cost"`
	ContextTransferCost   float64 `json:"context_transfer_cost"`
	ProjectedSessionTasks int     `json:"projected_session_tasks"`
	CostPerTaskInSession  float64 `json:"cost_per_task_in_session"`
	TotalSessionCost      float64 `json:"total_session_cost"`
	SessionPremium        float64 `json:"session_premium"`
	ContextLossRisk       float64 `json:"context_loss_risk"`
}

// Analyze projects the cost of paying upgradeCost per task for the rest of
// the session.
func Analyze(s Snapshot, cfg Config, upgradeCost float64) Analysis {
	avg := cfg.AverageSessionTasks

	if s.Tier == TierCloud {
		return Analysis{
			Status: StatusInCloudSession,
			CloudProjection: &CloudProjection{
				CurrentTaskCost:  upgradeCost,
				SessionCostSoFar: s.TotalCost,
				TaskNumber:       s.TaskCount + 1,
				ProjectedTotal:   s.TotalCost + upgradeCost*float64(avg-s.TaskCount),
			},
		}
	}

	var continuation float64
	if avg > 0 {
		continuation = cfg.SessionContinuationCost / float64(avg)
	}
	costPerTask := upgradeCost + continuation
	total := cfg.ContextTransferCost + float64(avg)*costPerTask

	var premium float64
	if upgradeCost > 0 {
		premium = total / upgradeCost
	}

	return Analysis{
		Status: StatusConsideringUpgrade,
		UpgradeProjection: &UpgradeProjection{
			SingleTaskCost:        upgradeCost,
			ContextTransferCost:   cfg.ContextTransferCost,
			ProjectedSessionTasks: avg,
			CostPerTaskInSession:  costPerTask,
			TotalSessionCost:      total,
			SessionPremium:        premium,
			ContextLossRisk:       cfg.ContextLossRisk,
		},
	}
}
