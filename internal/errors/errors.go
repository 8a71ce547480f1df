// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package errors defines typed errors with categories for user-friendly reporting.
// It provides a structured approach to error handling with machine-readable error kinds
// and human-friendly messages, so callers can pick a hint for the user without parsing
// error strings.
//
// The package supports wrapping underlying errors while maintaining error kind information.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// AuthFailed indicates the backend rejected the credentials (HTTP 401).
	AuthFailed Kind = "auth_failed"
	// Forbidden indicates the credentials lack access to the resource (HTTP 403).
	Forbidden Kind = "forbidden"
	// NotFound indicates the endpoint variant or resource does not exist (HTTP 404).
	NotFound Kind = "not_found"
	// Timeout indicates a transport-level timeout.
	Timeout Kind = "timeout"
	// Connection indicates the host could not be reached.
	Connection Kind = "connection_error"
	// HTTP indicates any other non-success HTTP status.
	HTTP Kind = "http_error"
	// BackendFailed indicates the remote service reported a failed message or statement.
	BackendFailed Kind = "backend_failed"
	// Unconfigured indicates required coordinates (host, token, ids) are missing.
	Unconfigured Kind = "unconfigured"
	// IterationLimit indicates the reasoning loop used up its step budget.
	IterationLimit Kind = "iteration_limit"
	// TimeLimit indicates the reasoning loop used up its wall-clock budget.
	TimeLimit Kind = "time_limit"
	// Parsing indicates the reasoning loop produced output it could not interpret.
	Parsing Kind = "parsing_failed"
	// InvalidInput indicates a caller supplied an unusable argument.
	InvalidInput Kind = "invalid_input"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// KindOf returns the kind of the first *E in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
