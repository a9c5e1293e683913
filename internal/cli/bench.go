// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-router/internal/benchmark"
)

// benchResult is the --json payload of `rigrun bench`.
type benchResult struct {
	*benchmark.Comparison
	Best      string `json:"best,omitempty"`
	Fastest   string `json:"fastest,omitempty"`
	SavedPath string `json:"saved_path,omitempty"`
}

var benchColumns = []int{24, 7, 7, 7, 9, 10}

func newBenchCmd(a *app) *cobra.Command {
	var (
		target  float64
		saveDir string
	)

	cmd := &cobra.Command{
		Use:   "bench [models...]",
		Short: "Compare local models on a fixed prompt suite",
		Long: `Bench sends each suite prompt to every model and rates the answers with
the same quality heuristic the router uses. A test passes when its answer
reaches --target, which defaults to the configured quality target.

Without arguments the configured local models are compared.`,
		Example: `  rigrun bench
  rigrun bench llama3.2:3b qwen2.5:7b --save-dir ~/.rigrun/benchmarks`,
		RunE: func(cmd *cobra.Command, args []string) error {
			models := args
			if len(models) == 0 {
				models = a.cfg.Local.Models
			}
			if !cmd.Flags().Changed("target") {
				target = a.cfg.Quality.Target
			}

			runner := benchmark.NewRunner(a.RawOllama(),
				benchmark.WithTarget(target),
				benchmark.WithLogger(a.logger))
			c, err := runner.RunComparison(cmd.Context(), models)
			if err != nil {
				return err
			}

			res := benchResult{Comparison: c}
			res.Best, _ = c.BestModel()
			res.Fastest, _ = c.FastestModel()
			if saveDir != "" {
				st, err := benchmark.NewStorage(saveDir)
				if err != nil {
					return err
				}
				if res.SavedPath, err = st.Save(c); err != nil {
					return err
				}
			}

			if a.opts.jsonOut {
				return a.writeJSON("bench", res)
			}
			a.printBench(res)
			return nil
		},
	}

	cmd.Flags().Float64Var(&target, "target", 0, "passing quality score (default from config)")
	cmd.Flags().StringVar(&saveDir, "save-dir", "", "directory to save the comparison as JSON")
	return cmd
}

func (a *app) printBench(res benchResult) {
	s := a.styles
	a.println(s.Title.Render(fmt.Sprintf("Benchmark (target %.1f)", res.Target)))
	a.println(s.Dim.Render(tableRow(benchColumns, "MODEL", "PASSED", "BELOW", "FAILED", "QUALITY", "LATENCY")))
	for _, m := range res.Models {
		r := res.Results[m]
		a.println(tableRow(benchColumns,
			m,
			fmt.Sprint(r.PassedTests),
			fmt.Sprint(r.BelowTargetTests),
			fmt.Sprint(r.FailedTests),
			fmt.Sprintf("%.1f", r.AvgQuality),
			benchmark.FormatLatency(r.AvgLatency),
		))
	}
	a.println()
	if res.Best != "" {
		a.println(s.Field("Best:", res.Best))
	}
	if res.Fastest != "" {
		a.println(s.Field("Fastest:", res.Fastest))
	}
	if res.SavedPath != "" {
		a.println(s.Field("Saved:", res.SavedPath))
	}
}
