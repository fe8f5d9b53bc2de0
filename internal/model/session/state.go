package session

import (
	"fmt"
	"strings"
)

// State is the position of a session in the ticket intake flow.
type State string

const (
	StateGreeting          State = "greeting"
	StateCollectingIssue   State = "collecting_issue"
	StateCollectingUrgency State = "collecting_urgency"
	StateConfirming        State = "confirming"
	StateComplete          State = "complete"
)

// legacyCollectingProduct was never entered by the flow; it is read as greeting.
const legacyCollectingProduct = "collecting_product"

// States lists every state in flow order.
func States() []State {
	return []State{
		StateGreeting,
		StateCollectingIssue,
		StateCollectingUrgency,
		StateConfirming,
		StateComplete,
	}
}

// Valid reports whether s is a member of the enumeration.
func (s State) Valid() bool {
	switch s {
	case StateGreeting, StateCollectingIssue, StateCollectingUrgency, StateConfirming, StateComplete:
		return true
	default:
		return false
	}
}

// HasTicket reports whether a ticket id must exist in this state.
func (s State) HasTicket() bool {
	return s == StateConfirming || s == StateComplete
}

// ParseState converts a wire value into a State.
func ParseState(raw string) (State, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == legacyCollectingProduct {
		return StateGreeting, nil
	}
	state := State(normalized)
	if !state.Valid() {
		return "", fmt.Errorf("unknown conversation state %q", raw)
	}
	return state, nil
}
