// Package audit defines the immutable audit trail event type and its closed
// set of kinds. Events are append-only and totally ordered per subject.
package audit

import "time"

// Kind enumerates the audit event kinds.
type Kind string

const (
	KindOrchestratorStarted    Kind = "orchestrator_started"
	KindAttemptStarted         Kind = "attempt_started"
	KindAttemptStateChanged    Kind = "attempt_state_changed"
	KindQRIssued               Kind = "qr_issued"
	KindQRConsumed             Kind = "qr_consumed"
	KindQRInvalidated          Kind = "qr_invalidated"
	KindConfirmationRecorded   Kind = "confirmation_recorded"
	KindConfirmationRevoked    Kind = "confirmation_revoked"
	KindCompletionUpserted     Kind = "completion_upserted"
	KindCompletionRetracted    Kind = "completion_retracted"
	KindPointsAwarded          Kind = "points_awarded"
	KindLevelChanged           Kind = "level_changed"
	KindExpired                Kind = "expired"
	KindRevoked                Kind = "revoked"
	KindCompensationRan        Kind = "compensation_ran"
	KindOrchestratorTerminated Kind = "orchestrator_terminated"
)

// Event is one immutable audit record. Never mutated after creation.
type Event struct {
	EventID    string                 `json:"event_id"`
	SubjectID  string                 `json:"subject_id"`
	Kind       Kind                   `json:"kind"`
	ActorID    string                 `json:"actor_id,omitempty"`
	Method     string                 `json:"method,omitempty"`
	AttemptID  string                 `json:"attempt_id,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
	InstanceID string                 `json:"orchestrator_instance_id,omitempty"`
}
