// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package genie

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"bichat/cli/internal/databricks"
	"bichat/cli/internal/model"

	"github.com/cenkalti/backoff/v5"
)

// errPending tells the retry loop the message has not finished yet.
var errPending = errors.New("message still pending")

// messagePayload is the subset of a Genie message the client reads.
type messagePayload struct {
	ID          string              `json:"id"`
	MessageID   string              `json:"message_id"`
	Status      string              `json:"status"`
	Content     string              `json:"content"`
	Attachments []attachmentPayload `json:"attachments"`
	Error       any                 `json:"error"`
}

type attachmentPayload struct {
	Type  string `json:"type"`
	Query *struct {
		Query       string `json:"query"`
		StatementID string `json:"statement_id"`
		Description string `json:"description"`
	} `json:"query"`
	Text *struct {
		Content string `json:"content"`
	} `json:"text"`
}

// mapStatus folds the backend's status vocabulary into the message lifecycle.
// Anything not known to be final counts as pending.
func mapStatus(s string) model.Status {
	switch strings.ToUpper(s) {
	case "COMPLETED":
		return model.StatusCompleted
	case "FAILED", "CANCELLED", "QUERY_RESULT_EXPIRED":
		return model.StatusFailed
	default:
		return model.StatusPending
	}
}

func (p messagePayload) toMessage() model.Message {
	m := model.Message{
		ID:      p.ID,
		Status:  mapStatus(p.Status),
		Content: p.Content,
	}
	if m.ID == "" {
		m.ID = p.MessageID
	}
	switch e := p.Error.(type) {
	case string:
		m.Error = e
	case map[string]any:
		m.Error = databricks.FirstString(e, "error", "message")
	}
	for _, a := range p.Attachments {
		switch {
		case a.Query != nil && (a.Type == "query_result" || a.Type == ""):
			m.Attachments = append(m.Attachments, model.Attachment{
				Type:        "query_result",
				SQL:         a.Query.Query,
				StatementID: a.Query.StatementID,
				Description: a.Query.Description,
			})
		case a.Text != nil && a.Text.Content != "":
			m.Attachments = append(m.Attachments, model.Attachment{Type: "text", Description: a.Text.Content})
		}
	}
	return m
}

func (c *Client) fetchMessage(ctx context.Context, h model.Handle, id string) (model.Message, error) {
	paths := databricks.Versioned(c.spacePath("/conversations/" + string(h) + "/messages/" + id))
	resp, err := c.api.Probe(ctx, http.MethodGet, paths, nil)
	if err != nil {
		return model.Message{}, err
	}
	var p messagePayload
	if err := resp.JSON(&p); err != nil {
		return model.Message{}, err
	}
	m := p.toMessage()
	if m.ID == "" {
		m.ID = id
	}
	return m, nil
}

// TimeoutText is the diagnostic content of a message that outlived the wait budget.
func TimeoutText(seconds int) string {
	return fmt.Sprintf("Query timed out after %d seconds. This may indicate: "+
		"1) Complex query requiring more time, 2) Network connectivity issues, 3) Genie service overload. "+
		"Try a simpler question or check your connection.", seconds)
}

// Poll waits for msg to finish. The status is fetched every PollInterval
// until it is terminal or WaitBudget runs out; the budget also bounds the
// fetches themselves. Fetch errors during the wait are logged and polling
// goes on. The returned message is never pending. A message that runs out of
// budget comes back as TIMED_OUT with diagnostic content. A non-nil error
// means ctx ended first.
func (c *Client) Poll(ctx context.Context, h model.Handle, msg model.Message) (model.Message, error) {
	if msg.Status.Terminal() {
		return msg, nil
	}
	if msg.Status == "" {
		msg.Status = model.StatusPending
	}
	bctx, cancel := context.WithTimeout(ctx, c.cfg.WaitBudget)
	defer cancel()

	attempt := 0
	op := func() (model.Message, error) {
		attempt++
		m, err := c.fetchMessage(bctx, h, msg.ID)
		switch {
		case ctx.Err() != nil:
			return msg, backoff.Permanent(ctx.Err())
		case bctx.Err() != nil:
			return msg, backoff.Permanent(errPending)
		case err != nil:
			c.log.Debug("genie poll failed, retrying", "attempt", attempt, "error", err)
			return msg, errPending
		case !m.Status.Terminal():
			c.log.Debug("genie message pending", "attempt", attempt, "message_id", msg.ID)
			return m, errPending
		}
		return m, nil
	}

	got, err := backoff.Retry(bctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.cfg.PollInterval)),
		backoff.WithMaxElapsedTime(c.cfg.WaitBudget),
	)
	if err != nil {
		if ctx.Err() != nil {
			return c.timedOut(msg), ctx.Err()
		}
		return c.timedOut(msg), nil
	}

	out := msg
	if err := out.Transition(got.Status); err != nil {
		return c.timedOut(msg), nil
	}
	out.Content, out.Attachments, out.Error = got.Content, got.Attachments, got.Error
	if got.ID != "" {
		out.ID = got.ID
	}
	if out.Status == model.StatusFailed && out.Content == "" {
		out.Content = "Query failed to execute"
		if out.Error != "" {
			out.Content += ": " + out.Error
		}
	}
	return out, nil
}

// timedOut moves a pending message to TIMED_OUT with diagnostic content.
func (c *Client) timedOut(msg model.Message) model.Message {
	_ = msg.Transition(model.StatusTimedOut)
	msg.Content = TimeoutText(int(c.cfg.WaitBudget.Seconds()))
	return msg
}
