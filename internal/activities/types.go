package activities

import (
	"time"

	"github.com/nabr/verification/internal/scoring"
	"github.com/nabr/verification/internal/store"
	"github.com/nabr/verification/internal/verifier"
)

// Activity names, as registered on the worker. Workflows invoke by name so
// the workflow packages stay free of activity dependencies.
const (
	NameRecordAuditEvent    = "RecordAuditEvent"
	NameIssueQRTokens       = "IssueQRTokens"
	NameConsumeQRToken      = "ConsumeQRToken"
	NameInvalidateQRTokens  = "InvalidateQRTokens"
	NameAuthorizeVerifiers  = "AuthorizeVerifiers"
	NameRecordConfirmations = "RecordConfirmations"
	NameRevokeConfirmations = "RevokeConfirmations"
	NameUpsertCompletion    = "UpsertCompletion"
	NameRetractCompletion   = "RetractCompletion"
	NameUpsertAttempt       = "UpsertAttempt"
	NameUpdateAttemptState  = "UpdateAttemptState"
	NameGenerateCode        = "GenerateCode"
	NameSendCode            = "SendCode"
	NameNotifyLevelChange   = "NotifyLevelChange"
	NameNotifyFailure       = "NotifyFailure"
	NameValidateDocument    = "ValidateDocument"
	NameEnqueueForReview    = "EnqueueForReview"
	NameCreditVerifiers     = "CreditVerifiers"
)

// IssueQRTokensInput requests QR token issuance for a two-party attempt.
type IssueQRTokensInput struct {
	AttemptID string `json:"attempt_id"`
	SubjectID string `json:"subject_id"`
}

// IssuedToken is one issued verifier slot token.
type IssuedToken struct {
	Slot      int       `json:"slot"`
	Token     string    `json:"token"`
	URI       string    `json:"uri"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueQRTokensResult returns both slot tokens.
type IssueQRTokensResult struct {
	Tokens []IssuedToken `json:"tokens"`
}

// ConsumeQRTokenInput identifies one consumption attempt.
type ConsumeQRTokenInput struct {
	Token      string `json:"token"`
	VerifierID string `json:"verifier_id"`
}

// AttemptRefInput addresses an attempt for the token/confirmation inverses.
type AttemptRefInput struct {
	AttemptID string `json:"attempt_id"`
	SubjectID string `json:"subject_id"`
}

// AuthorizeVerifiersInput validates all verifiers of an attempt in one call.
type AuthorizeVerifiersInput struct {
	SubjectID   string              `json:"subject_id"`
	SubjectKind scoring.SubjectKind `json:"subject_kind"`
	Method      scoring.Method      `json:"method"`
	VerifierIDs []string            `json:"verifier_ids"`
}

// AuthorizeVerifiersResult reports the per-verifier decisions.
type AuthorizeVerifiersResult struct {
	AllAuthorized bool                         `json:"all_authorized"`
	Decisions     map[string]verifier.Decision `json:"decisions"`
	Unauthorized  []string                     `json:"unauthorized,omitempty"`
}

// RecordConfirmationsInput persists both confirmations of an attempt.
type RecordConfirmationsInput struct {
	Confirmations []store.Confirmation `json:"confirmations"`
}

// RetractCompletionInput removes a completion.
type RetractCompletionInput struct {
	SubjectID string         `json:"subject_id"`
	Method    scoring.Method `json:"method"`
}

// UpdateAttemptStateInput moves a stored attempt record.
type UpdateAttemptStateInput struct {
	AttemptID string         `json:"attempt_id"`
	Method    scoring.Method `json:"method"`
	State     string         `json:"state"`
	SagaStep  int            `json:"saga_step"`
}

// SendCodeInput dispatches a verification code over a channel.
type SendCodeInput struct {
	SubjectID   string `json:"subject_id"`
	Channel     string `json:"channel"` // "email" or "phone"
	Destination string `json:"destination"`
	Code        string `json:"code"`
}

// NotifyLevelChangeInput announces an upgrade or downgrade.
type NotifyLevelChangeInput struct {
	SubjectID string `json:"subject_id"`
	OldLevel  string `json:"old_level"`
	NewLevel  string `json:"new_level"`
	Score     int    `json:"score"`
}

// NotifyFailureInput announces a user-visible failed attempt.
type NotifyFailureInput struct {
	SubjectID string         `json:"subject_id"`
	Method    scoring.Method `json:"method"`
	Kind      string         `json:"kind"` // notify.Kind* constant
	Reason    string         `json:"reason,omitempty"`
}

// ValidateDocumentInput carries upload metadata for pre-review validation.
type ValidateDocumentInput struct {
	DocumentHandle string `json:"document_handle"`
	DocumentType   string `json:"document_type"`
	SizeBytes      int64  `json:"size_bytes"`
}

// ValidateDocumentResult reports whether the upload is reviewable.
type ValidateDocumentResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// EnqueueForReviewInput queues a validated document for a human reviewer.
type EnqueueForReviewInput struct {
	AttemptID      string         `json:"attempt_id"`
	SubjectID      string         `json:"subject_id"`
	Method         scoring.Method `json:"method"`
	DocumentHandle string         `json:"document_handle"`
}

// CreditVerifiersInput bumps attestation counters after a completed
// two-party verification.
type CreditVerifiersInput struct {
	VerifierIDs []string `json:"verifier_ids"`
}
