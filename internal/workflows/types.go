package workflows

import (
	"time"

	"github.com/nabr/verification/internal/scoring"
)

// Workflow names, as registered on the worker and referenced when the
// orchestrator launches children.
const (
	NameSubjectOrchestrator = "SubjectVerificationWorkflow"
	NameTwoParty            = "TwoPartyWorkflow"
	NameCode                = "CodeWorkflow"
	NameDocumentReview      = "DocumentReviewWorkflow"
)

// Signal names. The orchestrator receives all of them; the per-attempt
// signals are forwarded to the owning child workflow.
const (
	SignalStartMethod          = "start_method"
	SignalVerifierConfirmation = "verifier_confirmation"
	SignalReviewerDecision     = "reviewer_decision"
	SignalSubmitCode           = "submit_code"
	SignalCommunityAttestation = "community_attestation"
	SignalRevokeMethod         = "revoke_method"
	SignalHistoryMilestone     = "history_milestone"
	SignalTerminate            = "terminate"
)

// Query names.
const (
	QueryTrustScore     = "get_trust_score"
	QueryLevel          = "get_level"
	QueryCompletions    = "get_completions"
	QueryNextLevelInfo  = "get_next_level_info"
	QueryActiveAttempts = "get_active_attempts"
	QueryStatus         = "get_status"
)

// StartMethodSignal asks the orchestrator to begin a verification method.
type StartMethodSignal struct {
	Method scoring.Method    `json:"method"`
	Params map[string]string `json:"params,omitempty"`
}

// VerifierConfirmationSignal is one verifier presenting a consumed QR token.
type VerifierConfirmationSignal struct {
	Token      string `json:"token"`
	VerifierID string `json:"verifier_id"`
	Location   string `json:"location,omitempty"`
	DeviceFP   string `json:"device_fp,omitempty"`
}

// ReviewerDecisionSignal resolves a document review attempt.
type ReviewerDecisionSignal struct {
	AttemptID  string `json:"attempt_id"`
	ReviewerID string `json:"reviewer_id"`
	Decision   string `json:"decision"` // "approve" or "reject"
	Notes      string `json:"notes,omitempty"`
}

// SubmitCodeSignal carries a user-entered verification code.
type SubmitCodeSignal struct {
	AttemptID string `json:"attempt_id"`
	Code      string `json:"code"`
}

// CommunityAttestationSignal is one attestor vouching for the subject.
type CommunityAttestationSignal struct {
	Method     scoring.Method    `json:"method"` // personal_reference or community_attestation
	AttestorID string            `json:"attestor_id"`
	Data       map[string]string `json:"data,omitempty"`
}

// RevokeMethodSignal retracts a completed method.
type RevokeMethodSignal struct {
	Method  scoring.Method `json:"method"`
	Reason  string         `json:"reason"`
	ActorID string         `json:"actor_id,omitempty"`
}

// HistoryMilestoneSignal awards passive platform or transaction history
// points.
type HistoryMilestoneSignal struct {
	Kind  string `json:"kind"` // "platform" or "transaction"
	Value int    `json:"value"`
}

// TerminateSignal stops the orchestrator after cancelling active attempts.
type TerminateSignal struct {
	Reason  string `json:"reason"`
	ActorID string `json:"actor_id,omitempty"`
}

// OutcomeKind classifies how a method attempt ended.
type OutcomeKind string

const (
	OutcomeCompleted            OutcomeKind = "completed"
	OutcomeTimeout              OutcomeKind = "timeout"
	OutcomeRejected             OutcomeKind = "rejected"
	OutcomeInvalidInput         OutcomeKind = "invalid_input"
	OutcomeVerifierUnauthorized OutcomeKind = "verifier_unauthorized"
	OutcomeCancelled            OutcomeKind = "cancelled"
)

// MethodOutcome is a child workflow's result. Children never fail with
// workflow errors for domain outcomes; they return a typed outcome so the
// orchestrator can compensate, audit and notify uniformly.
type MethodOutcome struct {
	AttemptID string         `json:"attempt_id"`
	Method    scoring.Method `json:"method"`
	Kind      OutcomeKind    `json:"kind"`
	Reason    string         `json:"reason,omitempty"`

	// Set when Kind is completed.
	Proposal *CompletionProposal `json:"proposal,omitempty"`
}

// CompletionProposal is what a successful child hands back. The orchestrator
// owns point computation and expiry; the child only reports what happened.
type CompletionProposal struct {
	Method      scoring.Method    `json:"method"`
	CompletedAt time.Time         `json:"completed_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	VerifierIDs []string          `json:"verifier_ids,omitempty"`
}

// CompletionState is the orchestrator's view of one active completion.
type CompletionState struct {
	Method      scoring.Method `json:"method"`
	Count       int            `json:"count"`
	Points      int            `json:"points"`
	CompletedAt time.Time      `json:"completed_at"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	AttestorIDs []string       `json:"attestor_ids,omitempty"`
}

// AttemptRef is the orchestrator's handle on one in-flight child.
type AttemptRef struct {
	AttemptID  string         `json:"attempt_id"`
	Method     scoring.Method `json:"method"`
	ChildID    string         `json:"child_id"`
	StartedAt  time.Time      `json:"started_at"`
	Deadline   time.Time      `json:"deadline"`
	Cancelling bool           `json:"cancelling,omitempty"`
}

// TrustState is the orchestrator's full serializable state. It is the
// continue-as-new payload: a fresh instance hydrated from it answers every
// query identically to the instance that produced it.
type TrustState struct {
	SubjectID        string                              `json:"subject_id"`
	SubjectKind      scoring.SubjectKind                 `json:"subject_kind"`
	Completions      map[scoring.Method]*CompletionState `json:"completions"`
	ActiveAttempts   map[string]*AttemptRef              `json:"active_attempts"`
	LastExpirySweep  time.Time                           `json:"last_expiry_sweep_at"`
	AuditSeq         int                                 `json:"audit_seq"`
	Generation       int                                 `json:"generation"`
	HistoryMilestone map[string]bool                     `json:"history_milestones,omitempty"`
}

// OrchestratorInput starts or continues a subject orchestrator.
type OrchestratorInput struct {
	SubjectID   string              `json:"subject_id"`
	SubjectKind scoring.SubjectKind `json:"subject_kind"`

	// Snapshot is nil on first start and carries the prior instance's
	// state across continue-as-new.
	Snapshot *TrustState `json:"snapshot,omitempty"`
}

// StatusSnapshot is the composite query result: one consistent view of
// score, level, completions and attempts taken at a single point in history.
type StatusSnapshot struct {
	SubjectID   string              `json:"subject_id"`
	SubjectKind scoring.SubjectKind `json:"subject_kind"`
	TrustScore  int                 `json:"trust_score"`
	Level       string              `json:"level"`
	Completions []CompletionState   `json:"completions"`
	Attempts    []AttemptRef        `json:"active_attempts"`
	NextLevel   scoring.NextLevelInfo `json:"next_level"`
	Generation  int                 `json:"generation"`
}

// ChildInput is the common child workflow input contract.
type ChildInput struct {
	AttemptID   string              `json:"attempt_id"`
	SubjectID   string              `json:"subject_id"`
	SubjectKind scoring.SubjectKind `json:"subject_kind"`
	Method      scoring.Method      `json:"method"`
	Params      map[string]string   `json:"params,omitempty"`
	Deadline    time.Duration       `json:"deadline"`
}
