// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"io"
	"os"
	"strings"

	bierrors "bichat/cli/internal/errors"
	"bichat/cli/internal/httperrors"
	"bichat/cli/internal/logging"
	"bichat/cli/internal/render"
	"bichat/cli/internal/terminal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var sqlRows int

// sqlCmd runs a statement directly on the configured warehouse.
var sqlCmd = &cobra.Command{
	Use:   "sql <statement | ->",
	Short: "Run a SQL statement on the warehouse",
	Long: `The sql command executes a statement on the configured warehouse and prints the
result table. Use "-" to read the statement from stdin.

The warehouse is WAREHOUSE_DSN when set (PostgreSQL), otherwise the Databricks SQL
warehouse given by DATABRICKS_WAREHOUSE_ID.`,
	Example: `  bichat sql "SELECT region, SUM(amount) FROM sales GROUP BY region"
  cat report.sql | bichat sql -`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stmt := strings.Join(args, " ")
		if stmt == "-" {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			stmt = string(b)
		}
		if strings.TrimSpace(stmt) == "" {
			return errors.New("SQL statement is required")
		}

		wh, err := newWarehouse(cfg, logger)
		if err != nil {
			return err
		}
		logger.Debug("executing statement", "driver", wh.Driver())

		spin := render.NewSpinner()
		if terminal.IsInteractive() {
			spin.Start("Running query")
		}
		tbl, err := wh.Execute(cmd.Context(), stmt)
		spin.Stop()
		if err != nil {
			return reportWarehouseError(err)
		}
		if tbl.Empty() {
			pterm.Info.Println("No results found")
			return nil
		}
		render.Table(os.Stdout, tbl.Columns, tbl.Strings(sqlRows))
		if sqlRows > 0 && len(tbl.Rows) > sqlRows {
			pterm.Info.Printf("Showing %d of %d rows\n", sqlRows, len(tbl.Rows))
		}
		return nil
	},
}

// reportWarehouseError shows the hint for a failed statement. Connection
// failures come back wrapped so the exit message names the network error.
func reportWarehouseError(err error) error {
	switch bierrors.KindOf(err) {
	case bierrors.Connection:
		return httperrors.FormatNetworkError(err, "running the statement")
	case bierrors.BackendFailed:
		logging.PrintError("warehouse", err, "Check the statement against the warehouse schema.")
	default:
		httperrors.Present(err, "running the statement")
	}
	return errReported
}

func init() {
	rootCmd.AddCommand(sqlCmd)
	sqlCmd.Flags().IntVar(&sqlRows, "rows", 50, "Maximum rows to display")
}
