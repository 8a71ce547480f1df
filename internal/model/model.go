// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package model holds the data types shared by the conversation client,
// the warehouse client and the orchestrator.
package model

import (
	"errors"
	"strings"
)

// Handle identifies a remote conversation. The zero value means "no conversation".
type Handle string

// Empty reports whether the handle is unset.
func (h Handle) Empty() bool { return strings.TrimSpace(string(h)) == "" }

// Status is the lifecycle state of a remote message.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusTimedOut  Status = "TIMED_OUT"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTimedOut
}

// ErrInvalidTransition is returned by Message.Transition for moves the lifecycle forbids.
var ErrInvalidTransition = errors.New("invalid message status transition")

// Message is one question/answer exchange inside a conversation.
type Message struct {
	ID          string
	Status      Status
	Content     string
	Attachments []Attachment
	// Error carries the backend's failure description, if any.
	Error string
}

// Transition moves the message to next. Only PENDING may change, and only to a
// terminal status.
func (m *Message) Transition(next Status) error {
	if m.Status == next {
		return nil
	}
	if m.Status != StatusPending && m.Status != "" {
		return ErrInvalidTransition
	}
	if !next.Terminal() && next != StatusPending {
		return ErrInvalidTransition
	}
	m.Status = next
	return nil
}

// Attachment is a SQL query the backend generated and ran for a message.
type Attachment struct {
	Type        string
	SQL         string
	StatementID string
	Description string
}

// Path names the orchestrator states a query went through, in order.
type Path []string

func (p Path) String() string { return strings.Join(p, " -> ") }

// QueryResult is the normalized outcome of one orchestrated question.
//
// Success implies Response is non-empty.
type QueryResult struct {
	Response     string
	Table        *Table
	SQL          string
	Conversation Handle
	Success      bool
	Path         Path
	// Failure is set when Response describes an expected remote failure
	// (auth, timeout, failed query) rather than an answer.
	Failure error
}
