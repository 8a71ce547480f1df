// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package orchestrator

import (
	"context"
	"sync"

	"bichat/cli/internal/model"
)

// Session holds the conversation handle of one user and serializes their
// questions.
type Session struct {
	o *Orchestrator

	mu     sync.Mutex
	handle model.Handle
}

// NewSession creates a session with no active conversation.
func NewSession(o *Orchestrator) *Session { return &Session{o: o} }

// Ask continues the active conversation, or starts one when there is none.
func (s *Session) Ask(ctx context.Context, question string) *model.QueryResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res *model.QueryResult
	if s.handle.Empty() {
		res = s.o.Query(ctx, question)
	} else {
		res = s.o.Continue(ctx, s.handle, question)
	}
	if !res.Conversation.Empty() {
		s.handle = res.Conversation
	}
	return res
}

// Handle returns the active conversation, if any.
func (s *Session) Handle() model.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Reset forgets the active conversation.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = ""
}
