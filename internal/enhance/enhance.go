// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package enhance rewrites draft answers through a Databricks model serving endpoint.
package enhance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"bichat/cli/internal/databricks"
	bierrors "bichat/cli/internal/errors"
)

// SystemPrompt frames the rewrite.
const SystemPrompt = "You are a senior business intelligence analyst providing in-depth analysis. " +
	"Transform raw data responses into comprehensive, actionable business analysis."

const (
	maxTokens   = 1000
	temperature = 0.3
)

// Config configures an Endpoint.
type Config struct {
	Host  string
	Token string
	// Name is the serving endpoint name; empty disables enhancement.
	Name string
	// Disabled turns enhancement off even when Name is set.
	Disabled bool

	HTTPClient     *http.Client
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// Endpoint is a serving endpoint that accepts chat or raw completion payloads.
type Endpoint struct {
	api      *databricks.Client
	name     string
	disabled bool
	log      *slog.Logger
}

// New creates an endpoint client.
func New(cfg Config) *Endpoint {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Endpoint{
		api: databricks.New(databricks.Options{
			Host:       cfg.Host,
			Token:      cfg.Token,
			Timeout:    timeout,
			HTTPClient: cfg.HTTPClient,
			Logger:     log,
		}),
		name:     strings.TrimSpace(cfg.Name),
		disabled: cfg.Disabled,
		log:      log,
	}
}

// Configured reports whether the endpoint can be called.
func (e *Endpoint) Configured() bool {
	return e != nil && !e.disabled && e.name != "" && e.api.Configured()
}

// Name returns the serving endpoint name.
func (e *Endpoint) Name() string { return e.name }

// payloads returns the request shapes in the order they are tried.
func payloads(system, prompt string) []any {
	messages := []map[string]string{}
	if system != "" {
		messages = append(messages, map[string]string{"role": "system", "content": system})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})
	return []any{
		map[string]any{
			"messages":    messages,
			"max_tokens":  maxTokens,
			"temperature": temperature,
		},
		map[string]any{
			"inputs": prompt,
			"parameters": map[string]any{
				"max_new_tokens": maxTokens,
				"temperature":    temperature,
				"do_sample":      true,
			},
		},
	}
}

// extractText reads the generated text from any of the response shapes
// serving endpoints are known to return.
func extractText(v any) string {
	if s := databricks.FirstString(v, "choices.0.message.content", "generated_text", "0.generated_text", "predictions.0"); s != "" {
		return s
	}
	if p, ok := databricks.Lookup(v, "predictions.0").(map[string]any); ok {
		return databricks.FirstString(p, "generated_text", "content", "text")
	}
	return ""
}

// Complete sends prompt to the endpoint, trying each payload shape in order
// until one returns HTTP 200 with recognizable text.
func (e *Endpoint) Complete(ctx context.Context, system, prompt string) (string, error) {
	if !e.Configured() {
		return "", bierrors.New(bierrors.Unconfigured, "serving endpoint is not configured")
	}
	path := "/serving-endpoints/" + e.name + "/invocations"
	var lastErr error
	for i, body := range payloads(system, prompt) {
		resp, err := e.api.Do(ctx, http.MethodPost, path, body)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Status != http.StatusOK {
			lastErr = fmt.Errorf("payload %d: HTTP %d", i+1, resp.Status)
			e.log.Debug("serving endpoint rejected payload", "endpoint", e.name, "shape", i+1, "status", resp.Status)
			continue
		}
		v, err := databricks.DecodeAny(resp.Body)
		if err != nil {
			lastErr = err
			continue
		}
		if text := strings.TrimSpace(extractText(v)); text != "" {
			return text, nil
		}
		lastErr = errors.New("unrecognized response shape")
	}
	return "", bierrors.Wrap(bierrors.BackendFailed, "serving endpoint "+e.name, lastErr)
}

// Prompt builds the rewrite request for a draft answer. The SQL and preview
// sections are included only when non-empty.
func Prompt(draft, sql, preview string) string {
	var b strings.Builder
	b.WriteString("Please enhance the following business intelligence response to make it more comprehensive and actionable:\n\n")
	b.WriteString("Original Response:\n")
	b.WriteString(draft)
	b.WriteString("\n\n")
	if sql != "" {
		b.WriteString("SQL Query Executed:\n")
		b.WriteString(sql)
		b.WriteString("\n\n")
	}
	if preview != "" {
		b.WriteString("Query Results Sample:\n")
		b.WriteString(preview)
		b.WriteString("\n\n")
	}
	b.WriteString(`Please provide an enhanced response that:
1. Uses clear, business-friendly language
2. Highlights key insights and patterns
3. Provides actionable recommendations
4. Explains the business implications
5. Maintains accuracy while adding context

Enhanced Response:`)
	return b.String()
}

// Enhance rewrites draft. It is best-effort: when the endpoint is not
// configured or every payload shape fails, draft is returned unchanged.
func (e *Endpoint) Enhance(ctx context.Context, draft, sql, preview string) string {
	if !e.Configured() || strings.TrimSpace(draft) == "" {
		return draft
	}
	text, err := e.Complete(ctx, SystemPrompt, Prompt(draft, sql, preview))
	if err != nil {
		e.log.Debug("enhancement skipped", "endpoint", e.name, "error", err)
		return draft
	}
	return text
}
