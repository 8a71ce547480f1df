// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package orchestrator

import "time"

// State is a step of the fallback policy.
type State string

const (
	StateDirectAttempt  State = "direct_attempt"
	StateAgenticAttempt State = "agentic_attempt"
	StateDirectRetry    State = "direct_retry"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// Terminal reports whether no further transitions follow.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// Label is a short human-readable description used for progress output.
func (s State) Label() string {
	switch s {
	case StateDirectAttempt:
		return "Asking Genie"
	case StateAgenticAttempt:
		return "Direct request failed, reasoning step by step"
	case StateDirectRetry:
		return "Retrying Genie directly"
	case StateDone:
		return "Answer ready"
	case StateFailed:
		return "Could not answer"
	default:
		return string(s)
	}
}

// Event reports a state transition of one run.
// Only a subset of fields is set depending on State.
type Event struct {
	RunID string `json:"run_id"`
	State State  `json:"state"`

	// Detail carries the reason for entering a fallback state.
	Detail string `json:"detail,omitempty"`

	// Elapsed is the time since the run started.
	Elapsed time.Duration `json:"elapsed"`
}

// Observer receives run events. Implementations must not block.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

type nopObserver struct{}

func (nopObserver) OnEvent(Event) {}
