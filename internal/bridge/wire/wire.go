// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package wire defines the messages exchanged over the chat bridge. Messages
// travel as google.protobuf.Struct values, so neither side needs generated
// code.
package wire

import (
	"errors"
	"strings"

	"bichat/cli/internal/model"

	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "bichat.Chat"
	MethodAsk   = "/bichat.Chat/Ask"
	MethodReset = "/bichat.Chat/Reset"
)

// AskRequest is one question within a session.
type AskRequest struct {
	SessionID string
	Question  string
}

func (r AskRequest) Struct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"session_id": r.SessionID,
		"question":   r.Question,
	})
}

// ParseAskRequest reads and validates an AskRequest.
func ParseAskRequest(s *structpb.Struct) (AskRequest, error) {
	r := AskRequest{
		SessionID: stringField(s, "session_id"),
		Question:  strings.TrimSpace(stringField(s, "question")),
	}
	if r.SessionID == "" {
		return r, errors.New("session_id is required")
	}
	if r.Question == "" {
		return r, errors.New("question is required")
	}
	return r, nil
}

// ResetRequest clears the conversation of a session.
type ResetRequest struct {
	SessionID string
}

func (r ResetRequest) Struct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"session_id": r.SessionID})
}

func ParseResetRequest(s *structpb.Struct) (ResetRequest, error) {
	r := ResetRequest{SessionID: stringField(s, "session_id")}
	if r.SessionID == "" {
		return r, errors.New("session_id is required")
	}
	return r, nil
}

// Reply is a QueryResult flattened for transport. Cells are rendered as text.
type Reply struct {
	Response       string
	Success        bool
	SQL            string
	ConversationID string
	Columns        []string
	Rows           [][]string
	Path           []string
}

// NewReply flattens res, keeping at most maxRows rows.
func NewReply(res *model.QueryResult, maxRows int) Reply {
	r := Reply{
		Response:       res.Response,
		Success:        res.Success,
		SQL:            res.SQL,
		ConversationID: string(res.Conversation),
		Path:           res.Path,
	}
	if res.Table != nil {
		r.Columns = res.Table.Columns
		r.Rows = res.Table.Strings(maxRows)
	}
	return r
}

func (r Reply) Struct() (*structpb.Struct, error) {
	cols := make([]any, len(r.Columns))
	for i, c := range r.Columns {
		cols[i] = c
	}
	rows := make([]any, len(r.Rows))
	for i, row := range r.Rows {
		cells := make([]any, len(row))
		for j, c := range row {
			cells[j] = c
		}
		rows[i] = cells
	}
	path := make([]any, len(r.Path))
	for i, p := range r.Path {
		path[i] = p
	}
	return structpb.NewStruct(map[string]any{
		"response":        r.Response,
		"success":         r.Success,
		"sql":             r.SQL,
		"conversation_id": r.ConversationID,
		"columns":         cols,
		"rows":            rows,
		"path":            path,
	})
}

// ParseReply reads a Reply. Missing fields are left empty.
func ParseReply(s *structpb.Struct) Reply {
	r := Reply{
		Response:       stringField(s, "response"),
		SQL:            stringField(s, "sql"),
		ConversationID: stringField(s, "conversation_id"),
		Columns:        stringList(s.GetFields()["columns"]),
		Path:           stringList(s.GetFields()["path"]),
	}
	r.Success = s.GetFields()["success"].GetBoolValue()
	for _, v := range s.GetFields()["rows"].GetListValue().GetValues() {
		r.Rows = append(r.Rows, stringList(v))
	}
	return r
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func stringList(v *structpb.Value) []string {
	vals := v.GetListValue().GetValues()
	if len(vals) == 0 {
		return nil
	}
	out := make([]string, len(vals))
	for i, x := range vals {
		out[i] = x.GetStringValue()
	}
	return out
}
