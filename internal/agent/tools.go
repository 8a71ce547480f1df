// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package agent

import (
	"context"
	"strings"
	"sync"

	bierrors "bichat/cli/internal/errors"
	"bichat/cli/internal/genie"
	"bichat/cli/internal/model"
)

// Tool names as they appear in the prompt.
const (
	GenieToolName   = "genie_query"
	SQLToolName     = "sql_query"
	EnhanceToolName = "enhance_response"
)

// Asker runs one conversational turn.
type Asker interface {
	Ask(ctx context.Context, h model.Handle, question string) (*genie.Answer, error)
}

// GenieTool asks the conversation service. It continues from Handle when set
// and remembers the last answer so callers can recover its table and SQL.
type GenieTool struct {
	asker Asker

	mu     sync.Mutex
	handle model.Handle
	last   *genie.Answer
}

// NewGenieTool creates the tool. A non-empty handle continues that
// conversation.
func NewGenieTool(a Asker, h model.Handle) *GenieTool {
	return &GenieTool{asker: a, handle: h}
}

func (t *GenieTool) Name() string { return GenieToolName }

func (t *GenieTool) Description() string {
	return "Query Databricks Genie with natural language questions about business intelligence data. " +
		"Use this tool to ask questions about sales, customers, campaigns, and business metrics. " +
		`Examples: "What are the top performing business units?", "Show me sales trends by quarter"`
}

func (t *GenieTool) Run(ctx context.Context, input string) (Observation, error) {
	t.mu.Lock()
	h := t.handle
	t.mu.Unlock()

	ans, err := t.asker.Ask(ctx, h, input)
	if err != nil {
		return Observation{}, err
	}

	t.mu.Lock()
	t.last = ans
	if !ans.Handle.Empty() {
		t.handle = ans.Handle
	}
	t.mu.Unlock()
	return Observation{Text: ans.Text, IsError: ans.Failure != nil}, nil
}

// Last returns the most recent answer, or nil.
func (t *GenieTool) Last() *genie.Answer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Executor runs SQL against a warehouse.
type Executor interface {
	Execute(ctx context.Context, sql string) (*model.Table, error)
}

// SQLTool runs SQL on the warehouse and reports a text preview.
type SQLTool struct {
	Exec    Executor
	MaxRows int
}

func (t SQLTool) Name() string { return SQLToolName }

func (t SQLTool) Description() string {
	return "Execute SQL queries against the Databricks warehouse to retrieve business data. " +
		"Use this for direct database queries when you need specific data analysis."
}

func (t SQLTool) Run(ctx context.Context, input string) (Observation, error) {
	if t.Exec == nil {
		return Observation{Text: "SQL query not available in local mode"}, nil
	}
	tbl, err := t.Exec.Execute(ctx, input)
	switch {
	case err != nil && ctx.Err() != nil:
		return Observation{}, ctx.Err()
	case bierrors.Is(err, bierrors.Unconfigured):
		return Observation{Text: "SQL query not available in local mode"}, nil
	case err != nil:
		return Observation{Text: "Error executing SQL query: " + err.Error(), IsError: true}, nil
	case tbl.Empty():
		return Observation{Text: "No results found"}, nil
	}
	rows := t.MaxRows
	if rows <= 0 {
		rows = 10
	}
	return Observation{Text: "Query executed successfully. Results:\n" + tbl.Preview(rows)}, nil
}

// Enhancer rewrites a draft answer.
type Enhancer interface {
	Enhance(ctx context.Context, draft, sql, preview string) string
}

// EnhanceTool polishes a draft answer through the enhancement endpoint.
type EnhanceTool struct {
	Enhancer Enhancer
}

func (t EnhanceTool) Name() string { return EnhanceToolName }

func (t EnhanceTool) Description() string {
	return "Enhance a response using an LLM serving endpoint to make it more business-friendly " +
		"and provide additional insights. Use this after getting a response from Genie."
}

func (t EnhanceTool) Run(ctx context.Context, input string) (Observation, error) {
	draft := strings.TrimSpace(input)
	if draft == "" {
		return Observation{Text: "Error: nothing to enhance", IsError: true}, nil
	}
	out := t.Enhancer.Enhance(ctx, draft, "", "")
	if err := ctx.Err(); err != nil {
		return Observation{}, err
	}
	return Observation{Text: out}, nil
}
