// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package agent runs a bounded text ReAct loop. On each step the model
// either names a tool to call (Action / Action Input) or answers (Final
// Answer). Tool results are appended to the scratchpad as observations.
// The loop is bounded by a step count and a wall-clock budget.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	bierrors "bichat/cli/internal/errors"
)

const (
	DefaultMaxSteps = 5
	DefaultMaxWait  = 60 * time.Second
)

// Observation is what a tool reports back to the model.
type Observation struct {
	Text    string
	IsError bool
}

// Tool is a capability the model can invoke by name.
type Tool interface {
	Name() string
	Description() string
	// Run executes the tool. Expected failures should be described in the
	// observation; a returned error is recorded as an error observation.
	Run(ctx context.Context, input string) (Observation, error)
}

// Request is what the model sees on each step.
type Request struct {
	// Prompt is the fully rendered ReAct prompt including the scratchpad.
	Prompt   string
	Question string
	Steps    []Step
}

// LLM produces the next ReAct output for a request.
type LLM interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Step is one model output and, for actions, the tool's observation.
type Step struct {
	Output      string
	Action      string
	Input       string
	Observation Observation
}

// Config configures a Loop.
type Config struct {
	Logger *slog.Logger
	LLM    LLM
	Tools  []Tool
	// MaxSteps bounds model calls per run. With more than one step the LLM
	// sees failed tool calls and may repeat them; Planner repeats once.
	MaxSteps int
	// MaxWait bounds the wall-clock time of a run.
	MaxWait time.Duration
	// ForceFinalAfterFirstTool ends the run with the first successful tool
	// observation as the final answer, verbatim. Failed calls do not end
	// the run.
	ForceFinalAfterFirstTool bool
}

// Validate fills defaults and checks required fields.
func (c *Config) Validate() error {
	if c.LLM == nil {
		return errors.New("llm is required")
	}
	if len(c.Tools) == 0 {
		return errors.New("at least one tool is required")
	}
	seen := map[string]bool{}
	for _, t := range c.Tools {
		if seen[t.Name()] {
			return fmt.Errorf("duplicate tool %q", t.Name())
		}
		seen[t.Name()] = true
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	if c.MaxWait <= 0 {
		c.MaxWait = DefaultMaxWait
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return nil
}

// Loop is a configured reasoning loop. It is safe for sequential reuse.
type Loop struct {
	cfg   Config
	log   *slog.Logger
	tools map[string]Tool
}

// New creates a loop.
func New(cfg Config) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tools := make(map[string]Tool, len(cfg.Tools))
	for _, t := range cfg.Tools {
		tools[t.Name()] = t
	}
	return &Loop{cfg: cfg, log: cfg.Logger, tools: tools}, nil
}

// Result is a completed run.
type Result struct {
	Answer string
	Steps  []Step
}

// Run answers question. Budget exhaustion is reported as an *errors.E of
// kind IterationLimit, TimeLimit or Parsing (when the last step could not be
// interpreted).
func (l *Loop) Run(ctx context.Context, question string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.MaxWait)
	defer cancel()

	var steps []Step
	lastUnparsed := false
	for i := 0; i < l.cfg.MaxSteps; i++ {
		if err := l.budget(ctx); err != nil {
			return &Result{Steps: steps}, err
		}
		l.log.Debug("agent step", "step", i+1, "max_steps", l.cfg.MaxSteps)

		out, err := l.cfg.LLM.Complete(ctx, Request{Prompt: l.prompt(question, steps), Question: question, Steps: steps})
		if err != nil {
			if berr := l.budget(ctx); berr != nil {
				return &Result{Steps: steps}, berr
			}
			return &Result{Steps: steps}, fmt.Errorf("llm: %w", err)
		}

		p := parse(out)
		step := Step{Output: out, Action: p.action, Input: p.input}
		switch {
		case p.final:
			l.log.Debug("agent final answer", "steps", i+1)
			return &Result{Answer: p.answer, Steps: steps}, nil
		case !p.ok:
			lastUnparsed = true
			step.Observation = Observation{
				Text:    "Invalid Format: Missing 'Action:' after 'Thought:' or no 'Final Answer:'",
				IsError: true,
			}
			steps = append(steps, step)
			continue
		}
		lastUnparsed = false

		step.Observation = l.runTool(ctx, p.action, p.input)
		steps = append(steps, step)
		if berr := l.budget(ctx); berr != nil {
			return &Result{Steps: steps}, berr
		}
		if l.cfg.ForceFinalAfterFirstTool && !toolFailed(step) {
			return &Result{Answer: step.Observation.Text, Steps: steps}, nil
		}
	}
	if lastUnparsed {
		return &Result{Steps: steps}, bierrors.New(bierrors.Parsing,
			fmt.Sprintf("could not parse model output after %d steps (parsing error)", l.cfg.MaxSteps))
	}
	return &Result{Steps: steps}, bierrors.New(bierrors.IterationLimit,
		fmt.Sprintf("agent stopped due to iteration limit (%d steps)", l.cfg.MaxSteps))
}

// toolFailed reports whether the step's tool returned an error rather than
// an observation of its own.
func toolFailed(s Step) bool {
	return s.Observation.IsError && strings.HasPrefix(s.Observation.Text, toolErrorPrefix)
}

const toolErrorPrefix = "Error: "

func (l *Loop) runTool(ctx context.Context, name, input string) Observation {
	tool, ok := l.tools[name]
	if !ok {
		return Observation{
			Text:    fmt.Sprintf("%s%s is not a valid tool, try one of [%s].", toolErrorPrefix, name, strings.Join(l.toolNames(), ", ")),
			IsError: true,
		}
	}
	obs, err := tool.Run(ctx, input)
	if err != nil {
		l.log.Debug("agent tool failed", "tool", name, "error", err)
		return Observation{Text: toolErrorPrefix + err.Error(), IsError: true}
	}
	return obs
}

func (l *Loop) budget(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return bierrors.Wrap(bierrors.TimeLimit, fmt.Sprintf("agent stopped due to time limit (%s)", l.cfg.MaxWait), err)
		}
		return err
	}
	return nil
}

func (l *Loop) toolNames() []string {
	names := make([]string, 0, len(l.cfg.Tools))
	for _, t := range l.cfg.Tools {
		names = append(names, t.Name())
	}
	return names
}
