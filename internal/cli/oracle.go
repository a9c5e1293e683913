// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-router/internal/oracle"
)

func newOracleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oracle",
		Short: "Inspect or refresh the remote routing table",
	}

	var free bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the routing table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := oracle.Load(a.cfg.Oracle.Path)
			if err != nil {
				return err
			}
			models := t.Models
			if free {
				models = t.Free()
			}
			if models == nil {
				models = []oracle.Model{}
			}
			doc := map[string]any{"models": models}
			if a.opts.jsonOut {
				return a.writeJSON("oracle show", doc)
			}
			data, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			writeJSONDocument(a.out, string(data), a.rich)
			return nil
		},
	}
	show.Flags().BoolVar(&free, "free", false, "only models with free input tokens")

	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Rewrite the routing table file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := oracle.EnsureFile(a.cfg.Oracle.Path, true)
			if err != nil {
				return err
			}
			if a.opts.jsonOut {
				return a.writeJSON("oracle refresh", map[string]any{
					"path":       a.cfg.Oracle.Path,
					"updated_at": t.UpdatedAt,
					"models":     len(t.Models),
				})
			}
			a.println(a.styles.Status("ok"), "oracle refreshed:", a.cfg.Oracle.Path)
			return nil
		},
	}

	cmd.AddCommand(show, refresh)
	return cmd
}
