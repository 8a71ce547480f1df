// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const systemPrompt = "You are a careful business intelligence assistant. Follow the response format exactly."

// Completer is a raw text completion endpoint, such as a Databricks
// serving endpoint.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// ServingLLM drives the loop with a serving endpoint.
type ServingLLM struct {
	Endpoint Completer
}

func (s ServingLLM) Complete(ctx context.Context, req Request) (string, error) {
	if s.Endpoint == nil {
		return "", errors.New("serving endpoint not configured")
	}
	return s.Endpoint.Complete(ctx, systemPrompt, req.Prompt)
}

// AnthropicLLM drives the loop with the Anthropic Messages API.
type AnthropicLLM struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	log       *slog.Logger
}

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = anthropic.ModelClaude3_5Haiku20241022

// NewAnthropicLLM creates a client. An empty apiKey falls back to
// ANTHROPIC_API_KEY from the environment.
func NewAnthropicLLM(apiKey, model string, log *slog.Logger) *AnthropicLLM {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	m := anthropic.Model(model)
	if model == "" {
		m = DefaultAnthropicModel
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &AnthropicLLM{
		client:    anthropic.NewClient(opts...),
		model:     m,
		maxTokens: 1024,
		log:       log,
	}
}

func (a *AnthropicLLM) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		StopSequences: []string{"\nObservation:"},
	})
	if err != nil {
		a.log.Debug("anthropic call failed", "duration", time.Since(start), "error", err)
		return "", fmt.Errorf("anthropic API error: %w", err)
	}
	a.log.Debug("anthropic call completed", "duration", time.Since(start), "stop_reason", msg.StopReason)

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", errors.New("no text content in response")
}
