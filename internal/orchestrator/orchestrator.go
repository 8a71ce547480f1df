// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package orchestrator turns a question into a normalized QueryResult. It
// tries the conversation service directly first. When that attempt breaks it
// falls back to the reasoning loop, and when the loop runs out of budget it
// retries the direct path once more before giving up.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bichat/cli/internal/agent"
	bierrors "bichat/cli/internal/errors"
	"bichat/cli/internal/model"

	"github.com/google/uuid"
)

const (
	DefaultAgentMaxSteps = 1
	DefaultAgentMaxWait  = 60 * time.Second
	DefaultPreviewRows   = 10
)

// Config wires the orchestrator to its collaborators.
type Config struct {
	// Genie answers questions. Required.
	Genie agent.Asker
	// Enhancer post-processes successful answers. Optional.
	Enhancer agent.Enhancer
	// Warehouse backs the sql_query tool of the reasoning loop. Optional.
	Warehouse agent.Executor
	// LLM drives the reasoning loop. Defaults to agent.Planner.
	LLM agent.LLM

	AgentMaxSteps int
	AgentMaxWait  time.Duration
	// DisableForceFinal lets the loop keep reasoning after its first
	// successful tool observation. By default that observation is the
	// final answer.
	DisableForceFinal bool

	// PreviewRows bounds the result preview passed to the enhancer.
	PreviewRows int

	Observer Observer
	Logger   *slog.Logger
}

// Orchestrator runs the fallback policy. It holds no per-conversation state
// and is safe for concurrent use; see Session for a stateful wrapper.
type Orchestrator struct {
	cfg Config
	log *slog.Logger
	obs Observer
}

// New validates cfg and fills defaults.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Genie == nil {
		return nil, errors.New("orchestrator: conversation client is required")
	}
	if cfg.LLM == nil {
		cfg.LLM = agent.Planner{}
	}
	if cfg.AgentMaxSteps <= 0 {
		cfg.AgentMaxSteps = DefaultAgentMaxSteps
	}
	if cfg.AgentMaxWait <= 0 {
		cfg.AgentMaxWait = DefaultAgentMaxWait
	}
	if cfg.PreviewRows <= 0 {
		cfg.PreviewRows = DefaultPreviewRows
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	return &Orchestrator{cfg: cfg, log: cfg.Logger, obs: cfg.Observer}, nil
}

// Query answers question in a new conversation.
func (o *Orchestrator) Query(ctx context.Context, question string) *model.QueryResult {
	return o.run(ctx, "", question)
}

// Continue answers a follow-up in the conversation h.
func (o *Orchestrator) Continue(ctx context.Context, h model.Handle, question string) *model.QueryResult {
	if h.Empty() {
		return &model.QueryResult{
			Response: "Error continuing conversation: no active conversation. Ask a new question to start one.",
			Failure:  bierrors.New(bierrors.InvalidInput, "no active conversation"),
		}
	}
	return o.run(ctx, h, question)
}

type run struct {
	id    string
	start time.Time
	path  model.Path
	log   *slog.Logger
}

func (o *Orchestrator) enter(r *run, s State, detail string) {
	r.path = append(r.path, string(s))
	if detail != "" {
		r.log.Debug("orchestrator transition", "state", s, "detail", detail)
	} else {
		r.log.Debug("orchestrator transition", "state", s)
	}
	o.obs.OnEvent(Event{RunID: r.id, State: s, Detail: detail, Elapsed: time.Since(r.start)})
}

func (o *Orchestrator) run(ctx context.Context, h model.Handle, question string) *model.QueryResult {
	r := &run{id: uuid.NewString(), start: time.Now()}
	r.log = o.log.With("run_id", r.id)

	o.enter(r, StateDirectAttempt, "")
	res, err := o.direct(ctx, h, question)
	if err == nil {
		return o.done(r, res)
	}
	if ctx.Err() != nil {
		return o.failed(r, h, ctx.Err(), nil)
	}

	o.enter(r, StateAgenticAttempt, err.Error())
	res, agentErr := o.agentic(ctx, h, question)
	if agentErr == nil {
		return o.done(r, res)
	}
	if ctx.Err() != nil {
		return o.failed(r, h, ctx.Err(), nil)
	}

	o.enter(r, StateDirectRetry, agentErr.Error())
	res, err = o.direct(ctx, h, question)
	if err == nil {
		return o.done(r, res)
	}
	return o.failed(r, h, agentErr, err)
}

func (o *Orchestrator) done(r *run, res *model.QueryResult) *model.QueryResult {
	o.enter(r, StateDone, "")
	res.Path = r.path
	r.log.Debug("orchestrator done", "path", r.path.String(), "elapsed", time.Since(r.start))
	return res
}

func (o *Orchestrator) failed(r *run, h model.Handle, agentErr, directErr error) *model.QueryResult {
	msg := FailureMessage(agentErr, directErr)
	o.enter(r, StateFailed, msg)
	cause := agentErr
	if directErr != nil {
		cause = errors.Join(agentErr, directErr)
	}
	return &model.QueryResult{
		Response:     msg,
		Conversation: h,
		Path:         r.path,
		Failure:      cause,
	}
}

// direct runs the conversation turn and, for real answers, enhancement.
func (o *Orchestrator) direct(ctx context.Context, h model.Handle, question string) (*model.QueryResult, error) {
	ans, err := o.cfg.Genie.Ask(ctx, h, question)
	if err != nil {
		return nil, err
	}
	res := &model.QueryResult{
		Response:     ans.Text,
		Table:        ans.Table,
		SQL:          ans.SQL(),
		Conversation: ans.Handle,
		Success:      true,
		Failure:      ans.Failure,
	}
	if res.Conversation.Empty() {
		res.Conversation = h
	}
	if ans.OK() && o.cfg.Enhancer != nil {
		var preview string
		if !ans.Table.Empty() {
			preview = ans.Table.Preview(o.cfg.PreviewRows)
		}
		res.Response = o.cfg.Enhancer.Enhance(ctx, ans.Text, res.SQL, preview)
		if strings.TrimSpace(res.Response) == "" {
			res.Response = ans.Text
		}
	}
	return res, nil
}

// agentic runs the reasoning loop with the conversation tool first in line.
func (o *Orchestrator) agentic(ctx context.Context, h model.Handle, question string) (*model.QueryResult, error) {
	gt := agent.NewGenieTool(o.cfg.Genie, h)
	tools := []agent.Tool{gt, agent.SQLTool{Exec: o.cfg.Warehouse, MaxRows: o.cfg.PreviewRows}}
	if e, ok := o.cfg.Enhancer.(interface{ Configured() bool }); ok && e.Configured() {
		tools = append(tools, agent.EnhanceTool{Enhancer: o.cfg.Enhancer})
	}
	loop, err := agent.New(agent.Config{
		Logger:                   o.log,
		LLM:                      o.cfg.LLM,
		Tools:                    tools,
		MaxSteps:                 o.cfg.AgentMaxSteps,
		MaxWait:                  o.cfg.AgentMaxWait,
		ForceFinalAfterFirstTool: !o.cfg.DisableForceFinal,
	})
	if err != nil {
		return nil, err
	}
	out, err := loop.Run(ctx, question)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Answer) == "" {
		return nil, bierrors.New(bierrors.Parsing, "agent returned an empty final answer (parsing error)")
	}
	res := &model.QueryResult{Response: out.Answer, Conversation: h, Success: true}
	if last := gt.Last(); last != nil {
		res.Table = last.Table
		res.SQL = last.SQL()
		res.Failure = last.Failure
		if !last.Handle.Empty() {
			res.Conversation = last.Handle
		}
	}
	return res, nil
}

// Phrases that name the failure class in unsuccessful results.
const (
	PhraseIterationLimit = "iteration limit"
	PhraseTimeLimit      = "time limit"
	PhraseParsing        = "parsing issue"
	PhraseCancelled      = "request was cancelled"
	PhraseUnavailable    = "service unavailable"
)

// FailureMessage builds the user-facing text of a failed run from the error
// of the reasoning loop and, if it ran, the error of the direct retry.
func FailureMessage(agentErr, directErr error) string {
	var text string
	switch {
	case errors.Is(agentErr, context.Canceled):
		text = "The " + PhraseCancelled + " before an answer arrived."
	case bierrors.Is(agentErr, bierrors.IterationLimit):
		text = "The agent reached its " + PhraseIterationLimit + " before answering. Please try rephrasing your question more specifically."
	case bierrors.Is(agentErr, bierrors.TimeLimit), errors.Is(agentErr, context.DeadlineExceeded):
		text = "The query reached its " + PhraseTimeLimit + ". Please try a simpler question or check your connection."
	case bierrors.Is(agentErr, bierrors.Parsing):
		text = "There was a " + PhraseParsing + " understanding the query format. Please try rephrasing your question."
	default:
		text = "The Genie " + PhraseUnavailable + ". Please check your DATABRICKS_HOST, DATABRICKS_TOKEN, and GENIE_SPACE_ID configuration and try again."
	}
	msg := "I encountered an issue processing your query: " + text
	if directErr != nil {
		msg += fmt.Sprintf(" (last error: %v)", directErr)
	}
	return msg
}
