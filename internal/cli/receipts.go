// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-router/internal/attempt"
	"github.com/jeranaias/rigrun-router/internal/storage"
	"github.com/jeranaias/rigrun-router/internal/util"
)

// =============================================================================
// RECEIPTS
// =============================================================================

func newReceiptsCmd(a *app) *cobra.Command {
	var (
		project string
		n       int
		last    bool
	)

	cmd := &cobra.Command{
		Use:   "receipts",
		Short: "Show the receipt ledger for a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.Store(ctx)
			if err != nil {
				return err
			}

			if last {
				r, err := store.LastReceipt(ctx)
				if errors.Is(err, storage.ErrNotFound) {
					return errors.New("no receipts recorded yet")
				}
				if err != nil {
					return err
				}
				if a.opts.jsonOut {
					return a.writeJSON("receipts", r)
				}
				a.printReceiptDetail(r)
				return nil
			}

			receipts, err := store.TailReceipts(ctx, project, n)
			if err != nil {
				return err
			}
			if receipts == nil {
				receipts = []attempt.Receipt{}
			}
			if a.opts.jsonOut {
				return a.writeJSON("receipts", receipts)
			}
			a.printReceipts(project, receipts)
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "default", "project to list")
	cmd.Flags().IntVarP(&n, "count", "n", 50, "number of receipts")
	cmd.Flags().BoolVar(&last, "last", false, "show the latest receipt of any project in full")
	return cmd
}

// receiptColumns are the widths of the receipt table.
var receiptColumns = []int{20, 10, 6, 28, 6, 9}

func (a *app) printReceipts(project string, receipts []attempt.Receipt) {
	s := a.styles
	a.println(s.Title.Render("Receipts for " + project))
	if len(receipts) == 0 {
		a.println(s.Dim.Render("  No receipts yet. Run `rigrun run --goal ...` to create one."))
		return
	}
	a.println(s.Dim.Render(tableRow(receiptColumns, "WHEN", "JOB", "TIER", "WHY", "COST", "LATENCY")))
	for _, r := range receipts {
		a.println(tableRow(receiptColumns,
			r.Timestamp.Local().Format("2006-01-02 15:04:05"),
			r.JobID,
			r.Tier,
			r.Why,
			fmt.Sprintf("%dc", r.CostCents),
			fmt.Sprintf("%.2fs", r.LatencySeconds),
		))
	}
}

func (a *app) printReceiptDetail(r attempt.Receipt) {
	s := a.styles
	a.println(s.Title.Render("Receipt " + r.JobID))
	a.println(s.Field("When:", r.Timestamp.Local().Format("2006-01-02 15:04:05")))
	a.println(s.Field("Project:", r.Project))
	a.println(s.Field("Tier:", r.Tier))
	a.println(s.Field("Model:", r.ModelPath))
	a.println(s.Field("Why:", r.Why))
	a.println(s.Field("Cost:", fmt.Sprintf("%d cents", r.CostCents)))
	a.println(s.Field("Latency:", fmt.Sprintf("%.2fs", r.LatencySeconds)))
	a.println(s.Field("Template:", r.TemplateVersion))
	if len(r.ValidationErrors) > 0 {
		a.println(s.Field("Validation:", strings.Join(r.ValidationErrors, ", ")))
	}
	for i, v := range r.Rounds {
		a.println(s.Field(fmt.Sprintf("Round %d:", i+1),
			fmt.Sprintf("agreement %.2f over %d samples", v.Agreement, v.Samples)))
	}
}

// tableRow lays out cells in fixed display-width columns, shortening cells
// that do not fit.
func tableRow(widths []int, cells ...string) string {
	var b strings.Builder
	for i, c := range cells {
		if i > 0 {
			b.WriteString("  ")
		}
		if i == len(cells)-1 || i >= len(widths) {
			b.WriteString(c)
			continue
		}
		b.WriteString(padRight(util.Ellipsize(c, widths[i]), widths[i]))
	}
	return b.String()
}

// =============================================================================
// EXEMPLARS
// =============================================================================

func newExemplarsCmd(a *app) *cobra.Command {
	var (
		project string
		n       int
	)

	cmd := &cobra.Command{
		Use:   "exemplars",
		Short: "Show the best retry-accepted outputs of a project",
		Long: `Exemplars are outputs that passed on retry. They are listed best
quality first, and each listing counts toward their used_count.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.Store(ctx)
			if err != nil {
				return err
			}
			rows, err := store.TopExemplars(ctx, project, n)
			if err != nil {
				return err
			}
			if rows == nil {
				rows = []storage.ExemplarRow{}
			}
			if a.opts.jsonOut {
				return a.writeJSON("exemplars", rows)
			}

			s := a.styles
			a.println(s.Title.Render("Exemplars for " + project))
			if len(rows) == 0 {
				a.println(s.Dim.Render("  None recorded."))
				return nil
			}
			widths := []int{10, 8, 10, 40}
			a.println(s.Dim.Render(tableRow(widths, "JOB", "QUALITY", "AGREEMENT", "GOAL")))
			for _, r := range rows {
				a.println(tableRow(widths,
					r.JobID,
					fmt.Sprintf("%.1f", r.Quality),
					fmt.Sprintf("%.2f", r.ConsensusAgreement),
					util.Ellipsize(r.Goal, 60),
				))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "default", "project to list")
	cmd.Flags().IntVarP(&n, "count", "n", 5, "number of exemplars")
	return cmd
}
