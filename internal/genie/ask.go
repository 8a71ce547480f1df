// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package genie

import (
	"context"
	"errors"
	"fmt"
	"strings"

	bierrors "bichat/cli/internal/errors"
	"bichat/cli/internal/model"
)

// Placeholder values shipped in sample configuration files.
const (
	PlaceholderToken = "YOUR_DATABRICKS_TOKEN_HERE"
	PlaceholderSpace = "YOUR_GENIE_SPACE_ID_HERE"
)

// Answer is the outcome of one conversational turn.
type Answer struct {
	Text       string
	Handle     model.Handle
	Message    model.Message
	Attachment *model.Attachment
	Table      *model.Table
	// Offline is set when the text is canned because coordinates are missing.
	Offline bool
	// Failure classifies an expected remote failure described by Text.
	Failure error
}

// OK reports whether the answer came from a completed remote message.
func (a *Answer) OK() bool { return a != nil && a.Failure == nil && !a.Offline }

// SQL returns the attached query text, if any.
func (a *Answer) SQL() string {
	if a == nil || a.Attachment == nil {
		return ""
	}
	return a.Attachment.SQL
}

// ExtractAttachment returns the first query attachment of a completed message
// and, when the backend ran it, its result table. A result that cannot be
// fetched yields a nil table while the SQL is still returned.
func (c *Client) ExtractAttachment(ctx context.Context, msg model.Message) (*model.Attachment, *model.Table) {
	if msg.Status != model.StatusCompleted {
		return nil, nil
	}
	for i := range msg.Attachments {
		att := msg.Attachments[i]
		if att.Type != "query_result" {
			continue
		}
		if att.StatementID == "" {
			return &att, nil
		}
		tbl, err := c.api.FetchStatement(ctx, att.StatementID, c.cache)
		if err != nil {
			c.log.Debug("statement result unavailable", "statement_id", att.StatementID, "error", err)
			return &att, nil
		}
		return &att, tbl
	}
	return nil, nil
}

// textAttachment returns the content of the first text attachment.
func textAttachment(msg model.Message) string {
	for _, a := range msg.Attachments {
		if a.Type == "text" && a.Description != "" {
			return a.Description
		}
	}
	return ""
}

// Ask runs one full turn: start or continue the conversation, wait for the
// answer, then read its attachment. An empty handle starts a new conversation.
//
// Remote failures the user can act on (bad credentials, unknown space,
// timeouts, failed queries) are returned as an Answer with descriptive Text
// and a typed Failure. A non-nil error is reserved for conditions the
// caller should treat as the attempt itself breaking: cancellation,
// malformed responses, invalid input.
func (c *Client) Ask(ctx context.Context, h model.Handle, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, bierrors.New(bierrors.InvalidInput, "question is empty")
	}
	if c.Offline() {
		c.log.Debug("genie offline, returning canned answer")
		return &Answer{Text: MockResponse(question), Offline: true}, nil
	}
	if text, ok := c.placeholderError(); ok {
		return &Answer{Text: text, Failure: bierrors.New(bierrors.Unconfigured, text)}, nil
	}

	var msg model.Message
	if h.Empty() {
		handle, m, err := c.Start(ctx, question)
		if err != nil {
			var se *StartError
			if errors.As(err, &se) {
				return &Answer{Text: se.Error(), Failure: bierrors.Wrap(se.Kind(), "start conversation", se)}, nil
			}
			return nil, err
		}
		h, msg = handle, m
	} else {
		m, err := c.Continue(ctx, h, question)
		if err != nil {
			var ce *ContinueError
			if errors.As(err, &ce) {
				return &Answer{Text: ce.Error(), Handle: h, Failure: bierrors.Wrap(ce.Kind(), "continue conversation", ce)}, nil
			}
			return nil, err
		}
		msg = m
	}

	msg, err := c.Poll(ctx, h, msg)
	if err != nil {
		return nil, err
	}
	ans := &Answer{Handle: h, Message: msg}
	switch msg.Status {
	case model.StatusTimedOut:
		ans.Text = fmt.Sprintf("Genie query timed out. The question '%s' may be too complex or there may be connectivity issues. "+
			"Try: 1) A simpler, more specific question, 2) Check your network connection, 3) Verify your Genie space is active.", question)
		ans.Failure = bierrors.New(bierrors.Timeout, msg.Content)
	case model.StatusFailed:
		ans.Text = "Query failed to execute"
		if msg.Error != "" {
			ans.Text += ": " + msg.Error
		}
		ans.Failure = bierrors.New(bierrors.BackendFailed, ans.Text)
	default:
		ans.Attachment, ans.Table = c.ExtractAttachment(ctx, msg)
		ans.Text = msg.Content
		if ans.Text == "" {
			ans.Text = textAttachment(msg)
		}
		if ans.Text == "" && ans.Attachment != nil {
			ans.Text = ans.Attachment.Description
		}
		if ans.Text == "" {
			ans.Text = "No response received from Genie"
		}
	}
	return ans, nil
}

func (c *Client) placeholderError() (string, bool) {
	if c.api.Token() == PlaceholderToken {
		return "Configuration Error: DATABRICKS_TOKEN is still set to placeholder value. " +
			"Please update your configuration with your actual Databricks personal access token.", true
	}
	if c.cfg.SpaceID == PlaceholderSpace {
		return "Configuration Error: GENIE_SPACE_ID is still set to placeholder value. " +
			"Please update your configuration with your actual Genie space ID.", true
	}
	return "", false
}

const datasetDescription = `Dataset Description:
- **Sales Data**: Contains transaction records with customer_id, product_id, amount, date
- **Customer Data**: Customer demographics including age, location, segment
- **Product Data**: Product catalog with categories, prices, descriptions
- **Campaign Data**: Marketing campaign performance metrics
- **Time Range**: Data spans 2020-2024 with daily granularity
- **Total Records**: Approximately 2.5M transactions across all tables
- **Key Metrics**: Revenue, customer acquisition, product performance, regional trends`

// MockResponse is the canned answer given when the client is offline.
func MockResponse(question string) string {
	lower := strings.ToLower(question)
	if strings.Contains(lower, "describe") && strings.Contains(lower, "dataset") {
		return datasetDescription
	}
	return fmt.Sprintf("Here's the analysis for your query about %s. The data shows various patterns in tenure bands, "+
		"campaigns, and sales metrics that can be visualized effectively.", question)
}
