// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	bierrors "bichat/cli/internal/errors"
	"bichat/cli/internal/genie"
	"bichat/cli/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedLLM returns canned outputs in order and records the prompts it saw.
type scriptedLLM struct {
	outputs []string
	prompts []string
}

func (s *scriptedLLM) Complete(_ context.Context, req Request) (string, error) {
	s.prompts = append(s.prompts, req.Prompt)
	if len(s.prompts) > len(s.outputs) {
		return "", errors.New("script exhausted")
	}
	return s.outputs[len(s.prompts)-1], nil
}

type fakeTool struct {
	name  string
	obs   Observation
	err   error
	calls []string
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake tool " + f.name }
func (f *fakeTool) Run(_ context.Context, input string) (Observation, error) {
	f.calls = append(f.calls, input)
	return f.obs, f.err
}

type fakeAsker struct {
	answers []*genie.Answer
	err     error
	handles []model.Handle
}

func (f *fakeAsker) Ask(_ context.Context, h model.Handle, _ string) (*genie.Answer, error) {
	f.handles = append(f.handles, h)
	if f.err != nil {
		return nil, f.err
	}
	a := f.answers[0]
	if len(f.answers) > 1 {
		f.answers = f.answers[1:]
	}
	return a, nil
}

func TestConfigValidate(t *testing.T) {
	tool := &fakeTool{name: "t"}
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "missing llm", cfg: Config{Tools: []Tool{tool}}, wantErr: "llm is required"},
		{name: "no tools", cfg: Config{LLM: Planner{}}, wantErr: "at least one tool"},
		{name: "duplicate tools", cfg: Config{LLM: Planner{}, Tools: []Tool{tool, tool}}, wantErr: "duplicate tool"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	cfg := Config{LLM: Planner{}, Tools: []Tool{tool}}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultMaxSteps, cfg.MaxSteps)
	assert.Equal(t, DefaultMaxWait, cfg.MaxWait)
	assert.NotNil(t, cfg.Logger)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want parsed
	}{
		{
			name: "action",
			in:   "I should ask.\nAction: genie_query\nAction Input: top regions by revenue",
			want: parsed{ok: true, action: "genie_query", input: "top regions by revenue"},
		},
		{
			name: "quoted input with trailing observation",
			in:   "Action: sql_query\nAction Input: \"SELECT 1\"\nObservation: made up",
			want: parsed{ok: true, action: "sql_query", input: "SELECT 1"},
		},
		{
			name: "final answer",
			in:   "Thought: done\nFinal Answer: Revenue grew 12%.",
			want: parsed{ok: true, final: true, answer: "Revenue grew 12%."},
		},
		{
			name: "final wins over action",
			in:   "Action: genie_query\nAction Input: x\nFinal Answer: y",
			want: parsed{ok: true, final: true, answer: "y"},
		},
		{name: "free text", in: "I am not sure what to do.", want: parsed{}},
		{name: "action without input", in: "Action: genie_query", want: parsed{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parse(tt.in))
		})
	}
}

func TestRunActionThenFinal(t *testing.T) {
	tool := &fakeTool{name: "genie_query", obs: Observation{Text: "EMEA leads with 40%"}}
	llm := &scriptedLLM{outputs: []string{
		"Action: genie_query\nAction Input: which region leads?",
		"Final Answer: EMEA leads with 40% of revenue.",
	}}
	loop, err := New(Config{LLM: llm, Tools: []Tool{tool}})
	require.NoError(t, err)

	res, err := loop.Run(context.Background(), "which region leads?")
	require.NoError(t, err)
	assert.Equal(t, "EMEA leads with 40% of revenue.", res.Answer)
	assert.Equal(t, []string{"which region leads?"}, tool.calls)
	require.Len(t, res.Steps, 1)

	require.Len(t, llm.prompts, 2)
	assert.Contains(t, llm.prompts[0], "User Question: which region leads?")
	assert.Contains(t, llm.prompts[0], "Available tools: genie_query")
	assert.Contains(t, llm.prompts[1], "Observation: EMEA leads with 40%")
}

func TestRunForceFinalAfterFirstTool(t *testing.T) {
	tool := &fakeTool{name: "genie_query", obs: Observation{Text: "Configuration Error: token is a placeholder", IsError: true}}
	loop, err := New(Config{LLM: Planner{}, Tools: []Tool{tool}, MaxSteps: 1, ForceFinalAfterFirstTool: true})
	require.NoError(t, err)

	res, err := loop.Run(context.Background(), "sales by month")
	require.NoError(t, err)
	assert.Equal(t, "Configuration Error: token is a placeholder", res.Answer)
}

func TestRunBudgets(t *testing.T) {
	t.Run("erroring tool exhausts one step", func(t *testing.T) {
		tool := &fakeTool{name: "genie_query", err: errors.New("connection reset")}
		loop, err := New(Config{LLM: Planner{}, Tools: []Tool{tool}, MaxSteps: 1, ForceFinalAfterFirstTool: true})
		require.NoError(t, err)

		res, err := loop.Run(context.Background(), "q")
		assert.Equal(t, bierrors.IterationLimit, bierrors.KindOf(err))
		assert.Contains(t, err.Error(), "iteration limit")
		require.Len(t, res.Steps, 1)
		assert.Equal(t, "Error: connection reset", res.Steps[0].Observation.Text)
	})

	t.Run("unparsable output", func(t *testing.T) {
		llm := &scriptedLLM{outputs: []string{"hmm", "still thinking"}}
		loop, err := New(Config{LLM: llm, Tools: []Tool{&fakeTool{name: "genie_query"}}, MaxSteps: 2})
		require.NoError(t, err)

		_, err = loop.Run(context.Background(), "q")
		assert.Equal(t, bierrors.Parsing, bierrors.KindOf(err))
		assert.Contains(t, llm.prompts[1], "Invalid Format")
	})

	t.Run("unknown tool", func(t *testing.T) {
		llm := &scriptedLLM{outputs: []string{"Action: charts\nAction Input: x", "Final Answer: gave up"}}
		loop, err := New(Config{LLM: llm, Tools: []Tool{&fakeTool{name: "genie_query"}}})
		require.NoError(t, err)

		res, err := loop.Run(context.Background(), "q")
		require.NoError(t, err)
		assert.Contains(t, res.Steps[0].Observation.Text, "charts is not a valid tool")
	})

	t.Run("time limit", func(t *testing.T) {
		slow := llmFunc(func(ctx context.Context, _ Request) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})
		loop, err := New(Config{LLM: slow, Tools: []Tool{&fakeTool{name: "genie_query"}}, MaxWait: 20 * time.Millisecond})
		require.NoError(t, err)

		_, err = loop.Run(context.Background(), "q")
		assert.Equal(t, bierrors.TimeLimit, bierrors.KindOf(err))
		assert.Contains(t, err.Error(), "time limit")
	})

	t.Run("caller cancellation is not a budget", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		loop, err := New(Config{LLM: Planner{}, Tools: []Tool{&fakeTool{name: "genie_query"}}})
		require.NoError(t, err)

		_, err = loop.Run(ctx, "q")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

type llmFunc func(context.Context, Request) (string, error)

func (f llmFunc) Complete(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

func TestPlanner(t *testing.T) {
	p := Planner{}
	out, err := p.Complete(context.Background(), Request{Question: "top products"})
	require.NoError(t, err)
	assert.Equal(t, parsed{ok: true, action: GenieToolName, input: "top products"}, parse(out))

	out, err = p.Complete(context.Background(), Request{Question: "top products", Steps: []Step{{
		Observation: Observation{Text: "Failed to start conversation with Genie. Connection error."},
	}}})
	require.NoError(t, err)
	assert.Equal(t, ConnectionHint, parse(out).answer)

	out, err = p.Complete(context.Background(), Request{Question: "top products", Steps: []Step{{
		Observation: Observation{Text: "Widgets sell best."},
	}}})
	require.NoError(t, err)
	assert.Equal(t, "Widgets sell best.", parse(out).answer)
}

func TestPlannerRetriesFailedToolOnce(t *testing.T) {
	tests := []struct {
		name      string
		tool      *fakeTool
		maxSteps  int
		wantCalls int
		wantErr   string
		wantKind  bierrors.Kind
	}{
		{
			name:      "one step allows a single call",
			tool:      &fakeTool{name: "genie_query", err: errors.New("connection reset")},
			maxSteps:  1,
			wantCalls: 1,
			wantKind:  bierrors.IterationLimit,
		},
		{
			name:      "failure is repeated once",
			tool:      &fakeTool{name: "genie_query", err: errors.New("connection reset")},
			maxSteps:  5,
			wantCalls: 2,
			wantErr:   "genie_query failed after 2 attempts: connection reset",
		},
		{
			name:      "two steps stop at the budget",
			tool:      &fakeTool{name: "genie_query", err: errors.New("connection reset")},
			maxSteps:  2,
			wantCalls: 2,
			wantKind:  bierrors.IterationLimit,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loop, err := New(Config{LLM: Planner{}, Tools: []Tool{tt.tool}, MaxSteps: tt.maxSteps, ForceFinalAfterFirstTool: true})
			require.NoError(t, err)

			_, err = loop.Run(context.Background(), "q")
			require.Error(t, err)
			assert.Len(t, tt.tool.calls, tt.wantCalls)
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, bierrors.KindOf(err))
			}
		})
	}
}

func TestPlannerFallsBackOnConnectionFailure(t *testing.T) {
	asker := &fakeAsker{answers: []*genie.Answer{{
		Text:    "Failed to start conversation with Genie. Connection error. Check if https://demo is accessible.",
		Failure: bierrors.New(bierrors.Connection, "start"),
	}}}
	loop, err := New(Config{LLM: Planner{}, Tools: []Tool{NewGenieTool(asker, "")}})
	require.NoError(t, err)

	res, err := loop.Run(context.Background(), "revenue by region")
	require.NoError(t, err)
	assert.Equal(t, ConnectionHint, res.Answer)
}

func TestGenieToolKeepsHandle(t *testing.T) {
	asker := &fakeAsker{answers: []*genie.Answer{
		{Text: "first", Handle: "c1"},
		{Text: "second", Handle: "c1"},
	}}
	tool := NewGenieTool(asker, "")

	obs, err := tool.Run(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, Observation{Text: "first"}, obs)
	_, err = tool.Run(context.Background(), "q2")
	require.NoError(t, err)

	assert.Equal(t, []model.Handle{"", "c1"}, asker.handles)
	assert.Equal(t, "second", tool.Last().Text)
}

func TestGenieToolError(t *testing.T) {
	tool := NewGenieTool(&fakeAsker{err: errors.New("boom")}, "")
	_, err := tool.Run(context.Background(), "q")
	assert.EqualError(t, err, "boom")
	assert.Nil(t, tool.Last())
}

type fakeExecutor struct {
	tbl *model.Table
	err error
}

func (f fakeExecutor) Execute(context.Context, string) (*model.Table, error) { return f.tbl, f.err }

func TestSQLTool(t *testing.T) {
	tests := []struct {
		name    string
		exec    Executor
		want    string
		isError bool
	}{
		{name: "no executor", exec: nil, want: "SQL query not available in local mode"},
		{name: "unconfigured", exec: fakeExecutor{err: bierrors.New(bierrors.Unconfigured, "no warehouse")}, want: "SQL query not available in local mode"},
		{name: "failure", exec: fakeExecutor{err: errors.New("syntax error")}, want: "Error executing SQL query: syntax error", isError: true},
		{name: "empty", exec: fakeExecutor{tbl: model.NewTable([]string{"a"}, nil)}, want: "No results found"},
		{name: "rows", exec: fakeExecutor{tbl: model.NewTable([]string{"region"}, [][]any{{"EMEA"}})}, want: "Query executed successfully. Results:\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, err := SQLTool{Exec: tt.exec}.Run(context.Background(), "SELECT 1")
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(obs.Text, tt.want), obs.Text)
			assert.Equal(t, tt.isError, obs.IsError)
		})
	}
}

type upperEnhancer struct{}

func (upperEnhancer) Enhance(_ context.Context, draft, _, _ string) string { return strings.ToUpper(draft) }

func TestEnhanceTool(t *testing.T) {
	obs, err := EnhanceTool{Enhancer: upperEnhancer{}}.Run(context.Background(), " revenue is up ")
	require.NoError(t, err)
	assert.Equal(t, "REVENUE IS UP", obs.Text)

	obs, err = EnhanceTool{Enhancer: upperEnhancer{}}.Run(context.Background(), "  ")
	require.NoError(t, err)
	assert.True(t, obs.IsError)
}

type echoCompleter struct{ system, prompt string }

func (e *echoCompleter) Complete(_ context.Context, system, prompt string) (string, error) {
	e.system, e.prompt = system, prompt
	return "Final Answer: ok", nil
}

func TestServingLLM(t *testing.T) {
	c := &echoCompleter{}
	out, err := ServingLLM{Endpoint: c}.Complete(context.Background(), Request{Prompt: "P"})
	require.NoError(t, err)
	assert.Equal(t, "Final Answer: ok", out)
	assert.Equal(t, "P", c.prompt)
	assert.Equal(t, systemPrompt, c.system)

	_, err = ServingLLM{}.Complete(context.Background(), Request{})
	assert.Error(t, err)
}
