// Package attempt models one in-flight verification attempt and its
// state machine. State transitions are monotone except revocation, which is
// only reachable from completed.
package attempt

import (
	"fmt"
	"time"

	"github.com/nabr/verification/internal/scoring"
)

// State represents the current state of a verification attempt.
type State string

const (
	StatePending         State = "pending"
	StateAwaitingParties State = "awaiting_parties"
	StateValidating      State = "validating"
	StateCompleted       State = "completed"
	StateRejected        State = "rejected"
	StateExpired         State = "expired"
	StateRevoked         State = "revoked"
)

// IsTerminal returns true if the state admits no further transitions other
// than revocation of a completed attempt.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateRejected, StateExpired, StateRevoked:
		return true
	}
	return false
}

// validTransitions is the closed transition table.
var validTransitions = map[State][]State{
	StatePending:         {StateAwaitingParties, StateValidating, StateRejected, StateExpired},
	StateAwaitingParties: {StateValidating, StateRejected, StateExpired},
	StateValidating:      {StateCompleted, StateRejected, StateExpired},
	StateCompleted:       {StateRevoked, StateExpired},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Attempt is one in-flight execution of one verification method.
type Attempt struct {
	ID        string         `json:"attempt_id"`
	SubjectID string         `json:"subject_id"`
	Method    scoring.Method `json:"method"`
	State     State          `json:"state"`
	CreatedAt time.Time      `json:"created_at"`
	Deadline  time.Time      `json:"deadline"`
	SagaStep  int            `json:"saga_step"`

	// Method-specific fields.
	QRTokens       []string `json:"qr_tokens,omitempty"`
	DocumentHandle string   `json:"document_handle,omitempty"`

	history []Transition
}

// Transition records one state change for debugging and audit payloads.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// New creates an attempt in the pending state.
func New(id, subjectID string, method scoring.Method, now time.Time) *Attempt {
	return &Attempt{
		ID:        id,
		SubjectID: subjectID,
		Method:    method,
		State:     StatePending,
		CreatedAt: now,
		Deadline:  now.Add(scoring.Deadline(method)),
	}
}

// Transition moves the attempt to a new state, enforcing the transition table.
func (a *Attempt) Transition(to State, now time.Time) error {
	if !CanTransition(a.State, to) {
		return fmt.Errorf("invalid attempt transition: %s -> %s", a.State, to)
	}
	a.history = append(a.history, Transition{From: a.State, To: to, At: now})
	a.State = to
	return nil
}

// History returns a copy of the recorded transitions.
func (a *Attempt) History() []Transition {
	out := make([]Transition, len(a.history))
	copy(out, a.history)
	return out
}
