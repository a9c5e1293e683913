// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Build information, set via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// newRootCommand returns the rigrun command tree and the app its commands
// share.
func newRootCommand() (*cobra.Command, *app) {
	a := &app{}

	root := &cobra.Command{
		Use:   "rigrun",
		Short: "Local-first LLM routing with consensus checks and paid upgrades",
		Long: `rigrun answers prompts with local Ollama models first and only
suggests or performs a paid cloud upgrade when local quality falls short.

Jobs run through k-sample consensus and an optional JSON schema gate, and
every decision is recorded in a local SQLite ledger.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.OutOrStdout(), cmd.ErrOrStderr(), cmd.InOrStdin())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.opts.configPath, "config", "", "config file (default ~/.rigrun/config.toml)")
	flags.StringVar(&a.opts.logLevel, "log-level", "", "override the configured log level")
	flags.BoolVar(&a.opts.jsonOut, "json", false, "print machine-readable JSON")
	flags.BoolVar(&a.opts.noColor, "no-color", false, "disable colored output")
	flags.BoolVar(&a.opts.offline, "offline", false, "block cloud models and non-local endpoints")

	root.AddCommand(
		newRunCmd(a),
		newReceiptsCmd(a),
		newExemplarsCmd(a),
		newOracleCmd(a),
		newRouteCmd(a),
		newUpgradeCmd(a),
		newChatCmd(a),
		newServeCmd(a),
		newStatsCmd(a),
		newSessionsCmd(a),
		newBenchCmd(a),
	)
	return root, a
}

// run executes root with args and releases the app afterwards.
func run(ctx context.Context, root *cobra.Command, a *app) error {
	err := root.ExecuteContext(ctx)
	if cerr := a.Close(); err == nil {
		err = cerr
	}
	return err
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, a := newRootCommand()
	if err := run(ctx, root, a); err != nil {
		if a.opts.jsonOut && a.out != nil {
			_ = NewJSONErrorResponse(root.Name(), err).Write(a.out)
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1)
	}
}
