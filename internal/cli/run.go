// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-router/internal/attempt"
	"github.com/jeranaias/rigrun-router/internal/oracle"
	"github.com/jeranaias/rigrun-router/internal/util"
)

const (
	// maxContextFiles is how many files a context directory contributes.
	maxContextFiles = 5

	// maxContextFileSize skips larger files in a context directory.
	maxContextFileSize = 200_000

	// DefaultOutDir is where job artifacts are written.
	DefaultOutDir = "out"
)

type runOptions struct {
	goal        string
	project     string
	contextPath string
	schemaPath  string
	budgetCents int
	allowRemote bool
	outDir      string
}

// runResult is the --json payload of `rigrun run`.
type runResult struct {
	JobID        string          `json:"job_id"`
	Outcome      string          `json:"outcome"`
	Summary      string          `json:"summary"`
	Target       string          `json:"target,omitempty"`
	Output       string          `json:"output"`
	ResultPath   string          `json:"result_path"`
	ReceiptPath  string          `json:"receipt_path"`
	Receipt      attempt.Receipt `json:"receipt"`
	ElapsedMilli int64           `json:"elapsed_ms"`
}

func newRunCmd(a *app) *cobra.Command {
	var o runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a job through local consensus and the schema gate",
		Long: `Run samples the local model k times, votes on the answers and checks
the winner against an optional JSON schema. A failed first round is retried
once with the prompt clipped to 3000 characters. If the retry also fails, a
remote tier is suggested when --budget-cents and --allow-remote permit it.

The output and its receipt are written to out/<project>/<job>/.`,
		Example: `  rigrun run --goal "Extract the invoice total" --context invoice.txt --schema total.json
  rigrun run --goal "Summarize" --context ./notes --budget-cents 5 --allow-remote`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case !cmd.Flags().Changed("allow-remote"):
				o.allowRemote = a.cfg.Policy.AllowRemote
			case o.allowRemote && a.cfg.Cloud.Offline:
				return errors.New("--allow-remote cannot be used in offline mode")
			}
			return a.runJob(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.goal, "goal", "", "what the job should produce (required)")
	f.StringVar(&o.project, "project", "default", "project the receipt is filed under")
	f.StringVar(&o.contextPath, "context", "", "context file, or a directory of files")
	f.StringVar(&o.schemaPath, "schema", "", "JSON schema the output must match")
	f.IntVar(&o.budgetCents, "budget-cents", 0, "remote spending budget in cents")
	f.BoolVar(&o.allowRemote, "allow-remote", false, "allow suggesting a remote tier")
	f.StringVar(&o.outDir, "out", DefaultOutDir, "artifact directory")
	_ = cmd.MarkFlagRequired("goal")
	return cmd
}

func (a *app) runJob(cmd *cobra.Command, o runOptions) error {
	ctx := cmd.Context()

	jobCtx, err := loadContext(o.contextPath)
	if err != nil {
		return err
	}
	var schemaDoc []byte
	if o.schemaPath != "" {
		if schemaDoc, err = os.ReadFile(o.schemaPath); err != nil {
			return fmt.Errorf("failed to read schema: %w", err)
		}
	}

	table, err := oracle.EnsureFile(a.cfg.Oracle.Path, false)
	if err != nil {
		return err
	}
	pipeline, err := a.Pipeline(ctx, table)
	if err != nil {
		return err
	}

	job := attempt.Job{
		ID:          newJobID(),
		Project:     o.project,
		Goal:        o.goal,
		Context:     jobCtx,
		Schema:      schemaDoc,
		SchemaPath:  o.schemaPath,
		BudgetCents: o.budgetCents,
		AllowRemote: o.allowRemote,
	}
	report, err := pipeline.RunReport(ctx, job)
	if err != nil {
		return fmt.Errorf("job %s failed: %w", job.ID, err)
	}

	dir := filepath.Join(o.outDir, job.Project, job.ID)
	resultPath := filepath.Join(dir, "result.txt")
	receiptPath := filepath.Join(dir, "receipt.json")
	if err := util.AtomicWriteFile(resultPath, []byte(report.Outcome.Text()), 0o644); err != nil {
		return err
	}
	if err := util.WriteJSONFile(receiptPath, report.Receipt, 0o644); err != nil {
		return err
	}
	a.logger.Info("job finished",
		zap.String("job_id", job.ID),
		zap.String("why", report.Receipt.Why),
		zap.Duration("elapsed", report.Elapsed))

	res := runResult{
		JobID:        job.ID,
		Outcome:      report.Outcome.Reason(),
		Summary:      attempt.Summary(report.Outcome),
		Output:       report.Outcome.Text(),
		ResultPath:   resultPath,
		ReceiptPath:  receiptPath,
		Receipt:      report.Receipt,
		ElapsedMilli: report.Elapsed.Milliseconds(),
	}
	if esc, ok := report.Outcome.(attempt.EscalationSuggested); ok {
		res.Target = esc.Target
	}

	if a.opts.jsonOut {
		return a.writeJSON("run", res)
	}
	a.printRun(res, report.Outcome)
	return nil
}

func (a *app) printRun(res runResult, out attempt.Outcome) {
	s := a.styles
	status := "ok"
	if attempt.Err(out) != nil {
		status = "limited"
	}
	a.println(s.Status(status), s.Title.Render(res.Summary), s.Dim.Render("("+res.Outcome+")"))
	switch o := out.(type) {
	case attempt.EscalationSuggested:
		if m, ok := o.FreeModel(); ok {
			a.println(s.Field("Try free model:", m))
		} else {
			a.println(s.Field("Escalation:", "a paid model is needed"))
		}
		a.println(s.Field("Reasons:", strings.Join(o.Reasons, ", ")))
	case attempt.LocalLimitReached:
		a.println(s.Field("Reasons:", strings.Join(o.Reasons, ", ")))
	}
	a.println(s.Field("Job:", res.JobID))
	a.println(s.Field("Artifact:", res.ResultPath))
	a.println(s.Field("Receipt:", res.ReceiptPath))
}

// newJobID returns a short random job id.
func newJobID() string {
	return uuid.NewString()[:8]
}

// loadContext reads a context file, or concatenates the first few small
// files of a directory in name order separated by blank lines.
func loadContext(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to read context: %w", err)
	}
	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read context: %w", err)
		}
		return string(data), nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		if fi.Mode().IsRegular() && fi.Size() < maxContextFileSize {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to walk context directory: %w", err)
	}
	sort.Strings(files)
	if len(files) > maxContextFiles {
		files = files[:maxContextFiles]
	}

	parts := make([]string, 0, len(files))
	for _, p := range files {
		data, err := os.ReadFile(p)
		if err != nil {
			return "", fmt.Errorf("failed to read context: %w", err)
		}
		parts = append(parts, string(data))
	}
	return strings.Join(parts, "\n\n"), nil
}
