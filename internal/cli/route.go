// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/rigrun-router/internal/router"
)

// =============================================================================
// COMMANDS
// =============================================================================

func newRouteCmd(a *app) *cobra.Command {
	var (
		sessionID   string
		autoUpgrade bool
	)

	cmd := &cobra.Command{
		Use:   "route <prompt...>",
		Short: "Route one prompt local-first",
		Long: `Route runs the prompt on every configured local model and returns the
best answer when it reaches the target quality. Otherwise the local answer
is shown together with ranked cloud upgrade options and a session cost
projection. With --auto-upgrade the best option is bought right away.`,
		Example: `  rigrun route "explain this stack trace"
  rigrun route --session 3f2a... "and the second frame?"
  rigrun route -a "write a merge sort in go"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			prompt := normalizePrompt(strings.Join(args, " "))
			if prompt == "" {
				return errors.New("prompt is empty")
			}

			rt, err := a.Router(ctx)
			if err != nil {
				return err
			}
			if err := a.resumeSession(ctx, rt, sessionID); err != nil {
				return err
			}
			res, err := rt.Route(ctx, prompt, sessionID, autoUpgrade)
			if err != nil {
				return err
			}

			if a.opts.jsonOut {
				return a.writeJSON("route", res)
			}
			a.printResult(res, rt.Thresholds())
			if res.Status == router.StatusLocalLimited {
				a.println()
				a.println(a.styles.Info.Render("Use --auto-upgrade to automatically use cloud models"))
				a.println(a.styles.Info.Render("Use --session " + res.Session.SessionID + " to continue this session"))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id to continue")
	cmd.Flags().BoolVarP(&autoUpgrade, "auto-upgrade", "a", false, "upgrade to cloud automatically if needed")
	return cmd
}

func newUpgradeCmd(a *app) *cobra.Command {
	var sessionID, model string

	cmd := &cobra.Command{
		Use:   "upgrade <prompt...>",
		Short: "Answer a prompt with a cloud model inside a session",
		Long: `Upgrade sends the prompt to a paid model and moves the session to the
cloud tier. Without --model the best ranked option is used.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			prompt := normalizePrompt(strings.Join(args, " "))
			if prompt == "" {
				return errors.New("prompt is empty")
			}

			rt, err := a.Router(ctx)
			if err != nil {
				return err
			}
			if err := a.resumeSession(ctx, rt, sessionID); err != nil {
				return err
			}
			res, err := rt.UpgradeToCloud(ctx, sessionID, prompt, model)
			if err != nil {
				return err
			}

			if a.opts.jsonOut {
				return a.writeJSON("upgrade", res)
			}
			a.printResult(res, rt.Thresholds())
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id to upgrade (required)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "cloud model id (default: best ranked option)")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

// normalizePrompt trims the prompt and puts it in NFC so composed and
// decomposed input score the same.
func normalizePrompt(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// =============================================================================
// RESULT FORMATTING
// =============================================================================

var titleCaser = cases.Title(language.English)

// displayModelName turns "anthropic/claude-3.5-sonnet" into
// "Anthropic / Claude 3.5 Sonnet".
func displayModelName(id string) string {
	s := strings.ReplaceAll(id, "/", " / ")
	s = strings.ReplaceAll(s, "-", " ")
	return titleCaser.String(s)
}

func (a *app) printResult(res *router.Result, t router.Thresholds) {
	switch res.Status {
	case router.StatusLocalSuccess:
		a.printLocalSuccess(res, t)
	case router.StatusLocalLimited:
		a.printUpgradeDecision(res, t)
	case router.StatusCloudSuccess:
		a.printCloudSuccess(res)
	}
}

func (a *app) printLocalSuccess(res *router.Result, t router.Thresholds) {
	s := a.styles
	a.println()
	a.println(s.Rule(0))
	a.println(s.Status("ok"), s.Title.Render("LOCAL FIRST SUCCESS"))
	a.println(s.Rule(0))
	a.println(s.Field("Model:", res.Model))
	a.println(s.Field("Quality:", fmt.Sprintf("%.1f/10 (Target: %.1f/10)", res.Quality, t.Target)))
	a.println(s.Field("Cost:", "FREE"))
	a.println(s.Field("Time:", fmt.Sprintf("%.2fs", res.ResponseTime)))
	a.println(s.Field("Privacy:", "100% Local"))
	a.println()
	a.println(s.Field("Session:", res.Session.SessionID))
	a.println(s.Field("Tasks in session:", fmt.Sprint(res.Session.TaskCount)))
	a.println(s.Rule(0))
	if res.Message != "" {
		a.println(s.Info.Render(res.Message))
	}
	a.printResponse("RESPONSE", res.Response)
}

func (a *app) printUpgradeDecision(res *router.Result, t router.Thresholds) {
	s := a.styles
	a.println()
	a.println(s.Rule(0))
	a.println(s.Status("limited"), s.Title.Render("LOCAL FIRST APPROACH"))
	a.println(s.Rule(0))
	if local := res.LocalResult; local != nil {
		a.println(s.Field("Best local model:", local.Model))
		a.println(s.Field("Local quality:", fmt.Sprintf("%.1f/10 (Target: %.1f/10)", local.Quality, t.Target)))
		a.println(s.Field("Local cost:", "FREE"))
		a.println(s.Field("Local time:", fmt.Sprintf("%.2fs", local.ResponseTime)))
	}
	a.println()
	a.println(s.Warning.Render(fmt.Sprintf("Local models cannot reach %.0f/10 quality for this task", t.Target)))

	if len(res.UpgradeOptions) > 0 {
		a.println(s.Section.Render("CLOUD UPGRADE OPTIONS"))
		for i, opt := range res.UpgradeOptions {
			a.printf("%d. %s\n", i+1, s.Highlight.Render(displayModelName(opt.Model)))
			a.printf("   Quality: %.1f/10 (%+.1f)\n", opt.Quality, opt.QualityGain)
			a.printf("   Cost: $%.6f ($%.6f per quality point)\n", opt.EstimatedCost, opt.CostPerPoint)
		}
	}

	if an := res.Analysis; an != nil && an.UpgradeProjection != nil {
		p := an.UpgradeProjection
		a.println(s.Section.Render("SESSION-AWARE COST ANALYSIS"))
		a.println(s.Field("Single task cost:", fmt.Sprintf("$%.6f", p.SingleTaskCost)))
		a.println(s.Field("Context transfer:", fmt.Sprintf("$%.6f", p.ContextTransferCost)))
		a.println(s.Field("Projected tasks:", fmt.Sprint(p.ProjectedSessionTasks)))
		a.println(s.Field("Total session cost:", fmt.Sprintf("$%.4f", p.TotalSessionCost)))
		a.println(s.Field("Session premium:", fmt.Sprintf("%.1fx more than single task", p.SessionPremium)))
		a.println()
		a.println(s.Warning.Render("REALITY CHECK:"))
		a.printf("  - This upgrade commits you to ~$%.2f for the session\n", p.TotalSessionCost)
		a.printf("  - Average session lasts %d tasks\n", p.ProjectedSessionTasks)
		a.printf("  - Each task in session costs $%.6f\n", p.CostPerTaskInSession)
	}

	a.println(s.Rule(0))
	if res.LocalResult != nil {
		a.printResponse("LOCAL RESPONSE", res.LocalResult.Response)
	}
	a.println(s.Field("Session ID:", res.Session.SessionID))
	a.println(s.Field("Session tier:", string(res.Session.Tier)))
	a.println(s.Field("Tasks in session:", fmt.Sprint(res.Session.TaskCount)))
}

func (a *app) printCloudSuccess(res *router.Result) {
	s := a.styles
	a.println()
	a.println(s.Rule(0))
	a.println(s.Status("ok"), s.Title.Render("CLOUD UPGRADE SUCCESSFUL"))
	a.println(s.Rule(0))
	a.println(s.Field("Model:", res.Model))
	a.println(s.Field("Quality:", fmt.Sprintf("%.1f/10", res.Quality)))
	a.println(s.Field("Cost:", fmt.Sprintf("$%.6f", res.Cost)))
	a.println()
	a.println(s.Field("Session:", res.Session.SessionID))
	a.println(s.Field("Session tier:", string(res.Session.Tier)))
	a.println(s.Field("Session cost so far:", fmt.Sprintf("$%.6f", res.Session.TotalCost)))
	a.println(s.Field("Tasks in session:", fmt.Sprint(res.Session.TaskCount)))
	a.println(s.Rule(0))
	a.printResponse("RESPONSE", res.Response)
}

func (a *app) printResponse(title, text string) {
	s := a.styles
	a.println()
	a.println(s.Section.Render(title + ":"))
	a.println(s.Separator.Render(strings.Repeat("-", 60)))
	writeResponse(a.out, text, a.rich)
	a.println(s.Separator.Render(strings.Repeat("-", 60)))
}
