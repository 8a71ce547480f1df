// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"bichat/cli/internal/agent"
	"bichat/cli/internal/config"
	"bichat/cli/internal/databricks"
	"bichat/cli/internal/enhance"
	"bichat/cli/internal/genie"
	"bichat/cli/internal/orchestrator"
	"bichat/cli/internal/warehouse"
)

const statementCacheTTL = 10 * time.Minute

// services are the remote clients built from configuration.
type services struct {
	genie     *genie.Client
	enhance   *enhance.Endpoint
	warehouse *warehouse.Client
	llm       agent.LLM
}

func newGenie(c config.Config, log *slog.Logger) (*genie.Client, error) {
	return genie.New(genie.Config{
		Host:           c.Databricks.Host,
		Token:          c.Databricks.Token,
		SpaceID:        c.Databricks.SpaceID,
		PollInterval:   c.Genie.PollInterval,
		WaitBudget:     c.Genie.WaitBudget,
		RequestTimeout: c.Genie.RequestTimeout,
		Cache:          databricks.NewStatementCache(statementCacheTTL),
		Logger:         log,
	})
}

func newWarehouse(c config.Config, log *slog.Logger) (*warehouse.Client, error) {
	return warehouse.New(warehouse.Config{
		Host:        c.Databricks.Host,
		Token:       c.Databricks.Token,
		WarehouseID: c.Databricks.WarehouseID,
		DSN:         c.Warehouse.DSN,
		WaitBudget:  c.Warehouse.WaitBudget,
		Logger:      log,
	})
}

func newEndpoint(c config.Config, disabled bool, log *slog.Logger) *enhance.Endpoint {
	return enhance.New(enhance.Config{
		Host:     c.Databricks.Host,
		Token:    c.Databricks.Token,
		Name:     c.Databricks.ServingEndpoint,
		Disabled: disabled,
		Logger:   log,
	})
}

// newLLM selects the model behind the reasoning loop.
func newLLM(c config.Config, log *slog.Logger) (agent.LLM, error) {
	switch c.Agent.LLM {
	case config.LLMServing:
		ep := newEndpoint(c, false, log)
		if !ep.Configured() {
			return nil, fmt.Errorf("agent.llm=%s needs databricks.serving_endpoint (DATABRICKS_SERVING_ENDPOINT_NAME), host and token", config.LLMServing)
		}
		return agent.ServingLLM{Endpoint: ep}, nil
	case config.LLMAnthropic:
		if c.Agent.AnthropicKey == "" {
			return nil, fmt.Errorf("agent.llm=%s needs an API key; set ANTHROPIC_API_KEY or run 'bichat login --anthropic'", config.LLMAnthropic)
		}
		return agent.NewAnthropicLLM(c.Agent.AnthropicKey, c.Agent.AnthropicModel, log), nil
	default:
		return agent.Planner{}, nil
	}
}

func newServices(c config.Config, log *slog.Logger) (*services, error) {
	g, err := newGenie(c, log)
	if err != nil {
		return nil, err
	}
	wh, err := newWarehouse(c, log)
	if err != nil {
		return nil, err
	}
	llm, err := newLLM(c, log)
	if err != nil {
		return nil, err
	}
	return &services{
		genie:     g,
		enhance:   newEndpoint(c, !c.Enhance, log),
		warehouse: wh,
		llm:       llm,
	}, nil
}

// newOrchestrator wires the configured clients into an orchestrator.
func newOrchestrator(c config.Config, log *slog.Logger, obs orchestrator.Observer) (*orchestrator.Orchestrator, error) {
	s, err := newServices(c, log)
	if err != nil {
		return nil, err
	}
	if s.genie.Offline() {
		log.Warn("Genie is not configured, answers are canned", "hint", "run 'bichat login' or set DATABRICKS_HOST, DATABRICKS_TOKEN and GENIE_SPACE_ID")
	}
	return orchestrator.New(orchestrator.Config{
		Genie:             s.genie,
		Enhancer:          s.enhance,
		Warehouse:         s.warehouse,
		LLM:               s.llm,
		AgentMaxSteps:     c.Agent.MaxSteps,
		AgentMaxWait:      c.Agent.MaxWait,
		DisableForceFinal: !c.Agent.ForceFinal,
		Observer:          obs,
		Logger:            log,
	})
}
