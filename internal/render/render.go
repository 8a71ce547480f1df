// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package render prints answers, result tables and diagnostics to the terminal.
package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"bichat/cli/internal/bridge/wire"
	"bichat/cli/internal/genie"

	"github.com/pterm/pterm"
)

// Options controls what Reply prints besides the answer.
type Options struct {
	// ShowSQL prints the generated SQL statement.
	ShowSQL bool
	// ShowPath prints the states the orchestrator went through.
	ShowPath bool
}

// Reply prints an answer. Local results are converted with wire.NewReply so
// local and remote answers look the same.
func Reply(w io.Writer, r wire.Reply, opts Options) {
	if !r.Success {
		fmt.Fprint(w, pterm.Error.Sprintln(r.Response))
		if opts.ShowPath && len(r.Path) > 0 {
			fmt.Fprintln(w, pathLine(r.Path))
		}
		return
	}

	fmt.Fprintln(w, pterm.DefaultBox.
		WithTitle(pterm.NewStyle(pterm.FgLightCyan, pterm.Bold).Sprint("Answer")).
		WithPadding(1).
		Sprint(strings.TrimSpace(r.Response)))

	if opts.ShowSQL && r.SQL != "" {
		fmt.Fprintln(w, pterm.NewStyle(pterm.FgLightCyan).Sprint("→ SQL"))
		fmt.Fprintln(w, pterm.NewStyle(pterm.FgGray).Sprint(strings.TrimSpace(r.SQL)))
		fmt.Fprintln(w)
	}
	if len(r.Columns) > 0 {
		Table(w, r.Columns, r.Rows)
	}
	if opts.ShowPath && len(r.Path) > 0 {
		fmt.Fprintln(w, pathLine(r.Path))
	}
}

// Table prints rows under a header. Nothing is printed without columns.
func Table(w io.Writer, columns []string, rows [][]string) {
	if len(columns) == 0 {
		return
	}
	data := pterm.TableData{columns}
	data = append(data, rows...)
	out, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		return
	}
	fmt.Fprintln(w, out)
	fmt.Fprintln(w, pterm.NewStyle(pterm.FgGray).Sprintf("%d row(s)", len(rows)))
}

func pathLine(path []string) string {
	return pterm.NewStyle(pterm.FgGray).Sprint("path: " + strings.Join(path, " -> "))
}

// Checks prints the steps of a connection diagnosis and reports whether all
// of them passed.
func Checks(w io.Writer, checks []genie.Check) bool {
	ok := true
	for _, c := range checks {
		var mark string
		switch c.Status {
		case genie.CheckOK:
			mark = pterm.NewStyle(pterm.FgGreen).Sprint("✓")
		case genie.CheckWarn:
			mark = pterm.NewStyle(pterm.FgYellow).Sprint("!")
		default:
			mark = pterm.NewStyle(pterm.FgRed).Sprint("✗")
			ok = false
		}
		line := fmt.Sprintf("%s %s", mark, pterm.Bold.Sprint(c.Name))
		if c.Elapsed > 0 {
			line += pterm.NewStyle(pterm.FgGray).Sprintf(" (%s)", c.Elapsed.Round(time.Millisecond))
		}
		fmt.Fprintln(w, line)
		if c.Detail != "" {
			fmt.Fprintf(w, "  %s\n", c.Detail)
		}
	}
	return ok
}
