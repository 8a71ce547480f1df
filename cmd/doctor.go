// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"os"
	"time"

	"bichat/cli/internal/logging"
	"bichat/cli/internal/render"
	"bichat/cli/internal/terminal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var doctorTimeout time.Duration

// doctorCmd checks the Genie connection step by step.
var doctorCmd = &cobra.Command{
	Use:     "doctor",
	Aliases: []string{"diagnose"},
	Short:   "Diagnose the Databricks and Genie connection",
	Long: `The doctor command checks the configuration, workspace connectivity, access to the
Genie space, starting a conversation and waiting for its reply. It stops at the first
failing step and explains what to fix.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
		defer cancel()

		g, err := newGenie(cfg, logger)
		if err != nil {
			return err
		}

		spin := render.NewSpinner()
		if terminal.IsInteractive() {
			spin.Start("Running diagnostics")
		}
		checks := g.Diagnose(ctx)
		spin.Stop()

		if !render.Checks(os.Stdout, checks) {
			pterm.Println()
			pterm.Info.Println("Run 'bichat login' to update credentials, or 'bichat config list' to review settings.")
			return errReported
		}

		pterm.Println()
		pterm.Success.Println("Genie connection is healthy")
		wh, err := newWarehouse(cfg, logger)
		switch {
		case err != nil:
			logging.PrintError("SQL warehouse", err, "Fix WAREHOUSE_DSN or DATABRICKS_WAREHOUSE_ID, or unset them to use local mode.")
		case wh.Configured():
			pterm.Info.Printf("SQL warehouse: %s\n", wh.Driver())
		default:
			pterm.Info.Println("No SQL warehouse configured; the sql_query tool runs in local mode")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().DurationVar(&doctorTimeout, "timeout", 2*time.Minute, "Overall time limit for the diagnosis")
}
