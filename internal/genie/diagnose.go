// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package genie

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"bichat/cli/internal/databricks"
	bierrors "bichat/cli/internal/errors"
	"bichat/cli/internal/httperrors"
	"bichat/cli/internal/model"
)

// CheckStatus is the outcome of one diagnostic step.
type CheckStatus string

const (
	CheckOK   CheckStatus = "ok"
	CheckWarn CheckStatus = "warn"
	CheckFail CheckStatus = "fail"
)

// Check is one step of Diagnose.
type Check struct {
	Name    string
	Status  CheckStatus
	Detail  string
	Elapsed time.Duration
}

// diagnosticQuestion is the greeting sent to verify a conversation can start.
const diagnosticQuestion = "Hello, can you help me?"

// Diagnose walks the connection step by step. It checks basic workspace
// access, then the Genie space, then starting a conversation, then waiting
// for its reply. It stops at the first failing step.
func (c *Client) Diagnose(ctx context.Context) []Check {
	var checks []Check
	add := func(ch Check) bool {
		checks = append(checks, ch)
		return ch.Status != CheckFail
	}

	if c.Offline() {
		add(Check{Name: "Configuration", Status: CheckFail, Detail: "Missing required configuration. Set DATABRICKS_HOST, DATABRICKS_TOKEN, and GENIE_SPACE_ID."})
		return checks
	}
	if text, ok := c.placeholderError(); ok {
		add(Check{Name: "Configuration", Status: CheckFail, Detail: text})
		return checks
	}
	add(Check{Name: "Configuration", Status: CheckOK, Detail: fmt.Sprintf("host %s, space %s", c.api.Host(), c.cfg.SpaceID)})

	if !add(c.checkConnectivity(ctx)) {
		return checks
	}
	if !add(c.checkSpace(ctx)) {
		return checks
	}

	start := time.Now()
	h, msg, err := c.Start(ctx, diagnosticQuestion)
	if err != nil {
		add(Check{Name: "Start conversation", Status: CheckFail, Detail: err.Error(), Elapsed: time.Since(start)})
		return checks
	}
	add(Check{Name: "Start conversation", Status: CheckOK, Detail: fmt.Sprintf("conversation %s, message %s", h, msg.ID), Elapsed: time.Since(start)})

	start = time.Now()
	got, err := c.Poll(ctx, h, msg)
	ch := Check{Name: "Wait for response", Elapsed: time.Since(start)}
	switch {
	case err != nil:
		ch.Status, ch.Detail = CheckFail, err.Error()
	case got.Status == model.StatusCompleted:
		ch.Status, ch.Detail = CheckOK, "Genie response received: "+httperrors.Truncate(got.Content, 100)
	case got.Status == model.StatusFailed:
		ch.Status, ch.Detail = CheckFail, "Genie processing failed: "+got.Error
	default:
		ch.Status, ch.Detail = CheckFail, got.Content
	}
	add(ch)
	return checks
}

func (c *Client) checkConnectivity(ctx context.Context) Check {
	ch := Check{Name: "Workspace connectivity"}
	start := time.Now()
	resp, err := c.api.Do(ctx, http.MethodGet, "/api/2.0/clusters/list", nil)
	ch.Elapsed = time.Since(start)
	if err != nil {
		ch.Status = CheckFail
		if httperrors.Classify(err) == bierrors.Timeout {
			ch.Detail = "Connection timeout. Check network and firewall."
		} else {
			ch.Detail = "Connection error: " + err.Error()
		}
		return ch
	}
	switch httperrors.ClassifyStatus(resp.Status) {
	case bierrors.AuthFailed:
		ch.Status, ch.Detail = CheckFail, "Authentication failed. Check your token."
	case bierrors.Forbidden:
		ch.Status, ch.Detail = CheckFail, "Access forbidden. Check token permissions."
	default:
		if resp.Status == http.StatusOK {
			ch.Status, ch.Detail = CheckOK, "workspace reachable"
		} else {
			ch.Status, ch.Detail = CheckWarn, fmt.Sprintf("Unexpected response: %d", resp.Status)
		}
	}
	return ch
}

func (c *Client) checkSpace(ctx context.Context) Check {
	ch := Check{Name: "Genie space access"}
	start := time.Now()
	resp, err := c.api.Probe(ctx, http.MethodGet, databricks.Versioned(c.spacePath("")), nil)
	ch.Elapsed = time.Since(start)
	if err != nil {
		ch.Status = CheckFail
		var pe *databricks.ProbeError
		if errors.As(err, &pe) {
			ch.Detail = describeAttempt(pe.Last(), c.api.Host(), c.cfg.SpaceID)
		} else {
			ch.Detail = err.Error()
		}
		return ch
	}
	name := "Unknown"
	if v, err := databricks.DecodeAny(resp.Body); err == nil {
		if s := databricks.FirstString(v, "display_name", "title", "space.display_name"); s != "" {
			name = s
		}
	}
	ch.Status, ch.Detail = CheckOK, "space name: "+name
	return ch
}
