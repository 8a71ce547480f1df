// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Table is a column-ordered result set. Every row has len(Columns) cells.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// NewTable builds a table, padding or truncating rows to the column count.
func NewTable(columns []string, rows [][]any) *Table {
	t := &Table{Columns: columns, Rows: make([][]any, 0, len(rows))}
	for _, r := range rows {
		row := make([]any, len(columns))
		copy(row, r)
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool { return t == nil || len(t.Rows) == 0 }

// Strings returns the rows with every cell formatted as text.
func (t *Table) Strings(maxRows int) [][]string {
	if t == nil {
		return nil
	}
	n := len(t.Rows)
	if maxRows > 0 && n > maxRows {
		n = maxRows
	}
	out := make([][]string, n)
	for i := 0; i < n; i++ {
		cells := make([]string, len(t.Rows[i]))
		for j, v := range t.Rows[i] {
			cells[j] = FormatCell(v)
		}
		out[i] = cells
	}
	return out
}

// Preview renders up to maxRows rows as a plain-text grid for prompts and
// tool observations. It returns "" for a nil table.
func (t *Table) Preview(maxRows int) string {
	if t == nil {
		return ""
	}
	var b strings.Builder
	w := tablewriter.NewWriter(&b)
	w.SetAutoWrapText(false)
	w.SetAutoFormatHeaders(false)
	w.SetBorder(false)
	w.SetHeader(t.Columns)
	w.AppendBulk(t.Strings(maxRows))
	w.Render()
	if maxRows > 0 && len(t.Rows) > maxRows {
		fmt.Fprintf(&b, "... (%d more rows)\n", len(t.Rows)-maxRows)
	}
	return b.String()
}

// FormatCell renders a single value the way the warehouse drivers normalize them.
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case []byte:
		return string(x)
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", x[0:4], x[4:6], x[6:8], x[8:10], x[10:16])
	case time.Time:
		return x.Format(time.RFC3339)
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprint(x)
	}
}
