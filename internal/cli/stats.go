// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-router/internal/router"
	"github.com/jeranaias/rigrun-router/internal/session"
	"github.com/jeranaias/rigrun-router/internal/storage"
	"github.com/jeranaias/rigrun-router/internal/util"
)

// =============================================================================
// STATS
// =============================================================================

// statsResult is the --json payload of `rigrun stats`.
type statsResult struct {
	storage.CostStats
	TemplateVersion string `json:"template_version,omitempty"`
}

func newStatsCmd(a *app) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show routing cost statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.Store(ctx)
			if err != nil {
				return err
			}
			st, err := store.CostStats(ctx, days)
			if err != nil {
				return err
			}
			res := statsResult{CostStats: st}
			version, _, err := store.ActiveTemplate(ctx)
			switch {
			case err == nil:
				res.TemplateVersion = version
			case !errors.Is(err, storage.ErrNotFound):
				return err
			}

			if a.opts.jsonOut {
				return a.writeJSON("stats", res)
			}

			s := a.styles
			a.println(s.Title.Render(fmt.Sprintf("Routing stats (last %d days)", st.Days)))
			a.println(s.Rule(0))
			a.println(s.Field("Total tasks:", fmt.Sprint(st.TotalTasks)))
			a.println(s.Field("Local tasks:", fmt.Sprint(st.LocalTasks)))
			a.println(s.Field("Cloud tasks:", fmt.Sprint(st.CloudTasks)))
			a.println(s.Field("Total cost:", fmt.Sprintf("$%.6f", st.TotalCost)))
			a.println(s.Field("Average cost:", fmt.Sprintf("$%.6f", st.AvgCost)))
			if st.TotalTasks > 0 {
				local := float64(st.LocalTasks) / float64(st.TotalTasks) * 100
				a.println(s.Field("Local share:", fmt.Sprintf("%.1f%%", local)))
			}
			if res.TemplateVersion != "" {
				a.println(s.Field("Prompt template:", res.TemplateVersion))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", storage.DefaultStatsDays, "trailing window in days")
	return cmd
}

// =============================================================================
// SESSIONS
// =============================================================================

// sessionDetail is the --json payload of `rigrun sessions show`.
type sessionDetail struct {
	storage.SessionRow
	Tasks []router.TaskRecord `json:"tasks"`
}

var sessionColumns = []int{36, 6, 6, 12, 20}

func newSessionsCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent routing sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.Store(ctx)
			if err != nil {
				return err
			}
			rows, err := store.RecentSessions(ctx, limit)
			if err != nil {
				return err
			}
			if rows == nil {
				rows = []storage.SessionRow{}
			}
			if a.opts.jsonOut {
				return a.writeJSON("sessions", rows)
			}

			s := a.styles
			a.println(s.Title.Render("Recent sessions"))
			if len(rows) == 0 {
				a.println(s.Dim.Render("  No sessions recorded."))
				return nil
			}
			a.println(s.Dim.Render(tableRow(sessionColumns, "SESSION", "TIER", "TASKS", "COST", "STARTED", "DURATION")))
			for _, r := range rows {
				a.println(tableRow(sessionColumns,
					r.SessionID,
					r.Tier,
					fmt.Sprint(r.TaskCount),
					fmt.Sprintf("$%.6f", r.TotalCost),
					r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					sessionDuration(r),
				))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", storage.DefaultRecentSessions, "number of sessions")

	show := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.Store(ctx)
			if err != nil {
				return err
			}
			row, err := store.GetSession(ctx, args[0])
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%w: %s", session.ErrSessionNotFound, args[0])
			}
			if err != nil {
				return err
			}
			tasks, err := store.SessionTasks(ctx, row.SessionID)
			if err != nil {
				return err
			}
			if tasks == nil {
				tasks = []router.TaskRecord{}
			}
			if a.opts.jsonOut {
				return a.writeJSON("sessions show", sessionDetail{SessionRow: row, Tasks: tasks})
			}

			s := a.styles
			a.println(s.Title.Render("Session " + row.SessionID))
			a.println(s.Field("Tier:", row.Tier))
			a.println(s.Field("Tasks:", fmt.Sprint(row.TaskCount)))
			a.println(s.Field("Total cost:", fmt.Sprintf("$%.6f", row.TotalCost)))
			a.println(s.Field("Duration:", sessionDuration(row)))
			for i, t := range tasks {
				a.println(s.Section.Render(fmt.Sprintf("Task %d", i+1)))
				a.println(s.Field("Decision:", string(t.Decision)))
				a.println(s.Field("Model:", t.FinalModel))
				a.println(s.Field("Local quality:", fmt.Sprintf("%.1f", t.LocalQuality)))
				if t.Decision == router.DecisionCloud {
					a.println(s.Field("Cloud quality:", fmt.Sprintf("%.1f", t.CloudQuality)))
				}
				a.println(s.Field("Cost:", fmt.Sprintf("$%.6f", t.ActualCost)))
				a.println(s.Field("Prompt:", util.Ellipsize(t.Prompt, 60)))
			}
			return nil
		},
	}
	cmd.AddCommand(show)
	return cmd
}

// sessionDuration formats how long a session ran, or has been running.
func sessionDuration(r storage.SessionRow) string {
	end := time.Now()
	if r.EndedAt != nil {
		end = *r.EndedAt
	}
	d := session.FormatDuration(end.Sub(r.StartedAt))
	if r.EndedAt == nil {
		return d + " (open)"
	}
	return d
}
