// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package genie is a client for the Databricks Genie conversation API.
//
// A turn is three steps. The question is posted to start a conversation (or
// continue one). The created message is polled until the backend finishes
// it. Then the SQL attachment and its result set are read. Ask runs the whole
// turn and reports expected remote failures as descriptive answer text, so
// callers can show them to the user as is.
package genie

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
	"bichat/cli/internal/model"
)

const (
	// DefaultPollInterval is the pause between message status checks.
	DefaultPollInterval = 2 * time.Second
	// DefaultWaitBudget bounds how long a message may stay pending.
	DefaultWaitBudget = 30 * time.Second
)

// Config configures a Client. Host, Token and SpaceID may be empty, in which
// case the client runs offline and answers with canned text.
type Config struct {
	Host    string
	Token   string
	SpaceID string

	PollInterval time.Duration
	WaitBudget   time.Duration

	// HTTPClient overrides the transport; used by tests.
	HTTPClient *http.Client
	// RequestTimeout bounds each HTTP request (default databricks.DefaultTimeout).
	RequestTimeout time.Duration
	// Cache holds fetched statement results. Nil disables caching.
	Cache  *databricks.StatementCache
	Logger *slog.Logger
}

// Validate fills defaults.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.WaitBudget <= 0 {
		c.WaitBudget = DefaultWaitBudget
	}
	if c.WaitBudget < c.PollInterval {
		return fmt.Errorf("wait budget %s is shorter than poll interval %s", c.WaitBudget, c.PollInterval)
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	c.SpaceID = strings.TrimSpace(c.SpaceID)
	return nil
}

// Client talks to one Genie space.
type Client struct {
	cfg   Config
	api   *databricks.Client
	log   *slog.Logger
	cache *databricks.StatementCache
}

// New creates a client for the space in cfg.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	api := databricks.New(databricks.Options{
		Host:       cfg.Host,
		Token:      cfg.Token,
		Timeout:    cfg.RequestTimeout,
		HTTPClient: cfg.HTTPClient,
		Logger:     cfg.Logger,
	})
	return &Client{cfg: cfg, api: api, log: cfg.Logger, cache: cfg.Cache}, nil
}

// Offline reports whether any coordinate is missing. Offline clients never
// touch the network.
func (c *Client) Offline() bool {
	return c.api.Host() == "" || c.api.Token() == "" || c.cfg.SpaceID == ""
}

// Host returns the normalized workspace URL.
func (c *Client) Host() string { return c.api.Host() }

// SpaceID returns the configured Genie space.
func (c *Client) SpaceID() string { return c.cfg.SpaceID }

// WaitBudget returns the effective polling budget.
func (c *Client) WaitBudget() time.Duration { return c.cfg.WaitBudget }

func (c *Client) spacePath(suffix string) string {
	return "/api/{v}/genie/spaces/" + c.cfg.SpaceID + suffix
}

// startPaths lists the start variants in the order they are tried.
func (c *Client) startPaths() []string {
	return append(
		databricks.Versioned(c.spacePath("/start-conversation")),
		databricks.Versioned(c.spacePath("/conversations"))...,
	)
}

// StartError reports that no start-conversation variant accepted the question.
type StartError struct {
	Host    string
	SpaceID string
	Probe   *databricks.ProbeError
}

// Kind returns the classification of the last attempt.
func (e *StartError) Kind() bierrors.Kind { return e.Probe.Kind() }

// Attempts returns every variant tried, in order.
func (e *StartError) Attempts() []databricks.Attempt { return e.Probe.Attempts }

func (e *StartError) Error() string {
	return "Failed to start conversation with Genie. " + describeAttempt(e.Probe.Last(), e.Host, e.SpaceID)
}

func (e *StartError) Unwrap() error { return e.Probe }

// describeAttempt renders the user-facing explanation for one failed variant.
func describeAttempt(a databricks.Attempt, host, space string) string {
	short := space
	if len(short) > 8 {
		short = short[:8]
	}
	switch a.Kind {
	case bierrors.AuthFailed:
		return "Authentication failed (401). Check your DATABRICKS_TOKEN permissions."
	case bierrors.Forbidden:
		return fmt.Sprintf("Access forbidden (403). Check if you have access to Genie space %s...", short)
	case bierrors.NotFound:
		return fmt.Sprintf("Genie space not found (404). Check if space ID %s... exists.", short)
	case bierrors.Timeout:
		return "Request timeout. Check network connection to " + host
	case bierrors.Connection:
		return fmt.Sprintf("Connection error. Check if %s is accessible.", host)
	default:
		return fmt.Sprintf("HTTP %d: %s", a.Status, a.Detail)
	}
}

// Start opens a new conversation with question as its first message. The
// four endpoint variants are tried in order. Authentication and access
// failures stop the probe; anything else moves on to the next variant.
// When every variant fails the error is a *StartError.
func (c *Client) Start(ctx context.Context, question string) (model.Handle, model.Message, error) {
	resp, err := c.api.Probe(ctx, http.MethodPost, c.startPaths(), map[string]string{"content": question})
	if err != nil {
		var pe *databricks.ProbeError
		if errors.As(err, &pe) {
			return "", model.Message{}, &StartError{Host: c.api.Host(), SpaceID: c.cfg.SpaceID, Probe: pe}
		}
		return "", model.Message{}, err
	}
	v, err := databricks.DecodeAny(resp.Body)
	if err != nil {
		return "", model.Message{}, fmt.Errorf("decode start-conversation response: %w", err)
	}
	cid := databricks.FirstString(v, "conversation_id", "conversation.id")
	mid := databricks.FirstString(v, "message_id", "message.id")
	if cid == "" || mid == "" {
		return "", model.Message{}, bierrors.New(bierrors.BackendFailed, "start-conversation response is missing conversation or message id")
	}
	c.log.Debug("genie conversation started", "conversation_id", cid, "message_id", mid)
	return model.Handle(cid), model.Message{ID: mid, Status: model.StatusPending}, nil
}

// ContinueError reports that no follow-up variant accepted the question.
type ContinueError struct {
	Host    string
	SpaceID string
	Probe   *databricks.ProbeError
}

func (e *ContinueError) Kind() bierrors.Kind { return e.Probe.Kind() }

func (e *ContinueError) Error() string {
	return "Failed to send message to Genie. " + describeAttempt(e.Probe.Last(), e.Host, e.SpaceID)
}

func (e *ContinueError) Unwrap() error { return e.Probe }

// Continue posts a follow-up question to an existing conversation.
func (c *Client) Continue(ctx context.Context, h model.Handle, question string) (model.Message, error) {
	if h.Empty() {
		return model.Message{}, bierrors.New(bierrors.InvalidInput, "no active conversation to continue")
	}
	paths := databricks.Versioned(c.spacePath("/conversations/" + string(h) + "/messages"))
	resp, err := c.api.Probe(ctx, http.MethodPost, paths, map[string]string{"content": question})
	if err != nil {
		var pe *databricks.ProbeError
		if errors.As(err, &pe) {
			return model.Message{}, &ContinueError{Host: c.api.Host(), SpaceID: c.cfg.SpaceID, Probe: pe}
		}
		return model.Message{}, err
	}
	v, err := databricks.DecodeAny(resp.Body)
	if err != nil {
		return model.Message{}, fmt.Errorf("decode create-message response: %w", err)
	}
	mid := databricks.FirstString(v, "id", "message_id", "message.id")
	if mid == "" {
		return model.Message{}, bierrors.New(bierrors.BackendFailed, "create-message response is missing message id")
	}
	return model.Message{ID: mid, Status: model.StatusPending}, nil
}
