package activities

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/nabr/verification/internal/attempt"
	"github.com/nabr/verification/internal/audit"
	"github.com/nabr/verification/internal/config"
	"github.com/nabr/verification/internal/metrics"
	"github.com/nabr/verification/internal/notify"
	"github.com/nabr/verification/internal/scoring"
	"github.com/nabr/verification/internal/store"
	"github.com/nabr/verification/internal/verifier"
)

// DocumentScanner pre-validates an uploaded document before it reaches a
// human reviewer.
type DocumentScanner interface {
	Scan(ctx context.Context, input ValidateDocumentInput) (ValidateDocumentResult, error)
}

// ReviewQueue hands a validated document off to the human review pipeline.
type ReviewQueue interface {
	Enqueue(ctx context.Context, input EnqueueForReviewInput) error
}

// Activities bundles every side-effecting operation the workflows invoke.
// All methods are safe to retry: database writes are idempotent upserts or
// compare-and-set, and notification dispatch is fire-and-forget.
type Activities struct {
	store    *store.Store
	notifier notify.Notifier
	verifier *verifier.Service
	scanner  DocumentScanner
	reviews  ReviewQueue
	metrics  *metrics.Metrics
	qr       config.QRConfig
	qrTTL    time.Duration
	logger   *log.Logger
}

func New(st *store.Store, n notify.Notifier, vs *verifier.Service, scanner DocumentScanner, reviews ReviewQueue, m *metrics.Metrics, cfg *config.Config) *Activities {
	return &Activities{
		store:    st,
		notifier: n,
		verifier: vs,
		scanner:  scanner,
		reviews:  reviews,
		metrics:  m,
		qr:       cfg.QR,
		qrTTL:    cfg.QRTokenTTL(),
		logger:   log.New(log.Writer(), "[ACTIVITIES] ", log.LstdFlags),
	}
}

// RecordAuditEvent appends one event to the audit trail. The caller supplies
// a deterministic event ID so a retried write lands on the same row.
func (a *Activities) RecordAuditEvent(ctx context.Context, e audit.Event) error {
	return a.store.RecordEvent(ctx, e)
}

// IssueQRTokens mints the two single-use verifier tokens for an in-person
// attempt. Insertion is idempotent per slot, so the returned tokens are read
// back from storage after the insert: a retry that regenerated token material
// still returns the tokens that actually won.
func (a *Activities) IssueQRTokens(ctx context.Context, in IssueQRTokensInput) (IssueQRTokensResult, error) {
	now := time.Now().UTC()
	expires := now.Add(a.qrTTL)

	fresh := make([]store.QRToken, 0, 2)
	for slot := 1; slot <= 2; slot++ {
		tok, err := randomToken()
		if err != nil {
			return IssueQRTokensResult{}, err
		}
		fresh = append(fresh, store.QRToken{
			Token:     tok,
			AttemptID: in.AttemptID,
			Slot:      slot,
			IssuedAt:  now,
			ExpiresAt: expires,
		})
	}
	if err := a.store.InsertQRTokens(ctx, fresh); err != nil {
		return IssueQRTokensResult{}, err
	}

	stored, err := a.store.QRTokensForAttempt(ctx, in.AttemptID)
	if err != nil {
		return IssueQRTokensResult{}, err
	}
	res := IssueQRTokensResult{}
	for _, t := range stored {
		res.Tokens = append(res.Tokens, IssuedToken{
			Slot:      t.Slot,
			Token:     t.Token,
			URI:       fmt.Sprintf("%s://%s/verify/%s/%s", a.qr.Scheme, a.qr.Host, t.AttemptID, t.Token),
			ExpiresAt: t.ExpiresAt,
		})
	}
	return res, nil
}

// ConsumeQRToken performs the single-winner consumption of a verifier token.
func (a *Activities) ConsumeQRToken(ctx context.Context, in ConsumeQRTokenInput) (store.ConsumeResult, error) {
	res, err := a.store.ConsumeQRToken(ctx, in.Token, in.VerifierID, time.Now().UTC())
	if err != nil {
		return store.ConsumeResult{}, err
	}
	a.metrics.QRConsumptions.WithLabelValues(string(res.Outcome)).Inc()
	return res, nil
}

// InvalidateQRTokens is the compensation inverse of IssueQRTokens.
func (a *Activities) InvalidateQRTokens(ctx context.Context, in AttemptRefInput) error {
	n, err := a.store.InvalidateQRTokens(ctx, in.AttemptID)
	if err != nil {
		return err
	}
	if n > 0 {
		a.logger.Printf("invalidated %d qr tokens for attempt %s", n, in.AttemptID)
	}
	return nil
}

// AuthorizeVerifiers runs the authorization rule chain for every verifier of
// an attempt and reports the combined decision.
func (a *Activities) AuthorizeVerifiers(ctx context.Context, in AuthorizeVerifiersInput) (AuthorizeVerifiersResult, error) {
	res := AuthorizeVerifiersResult{
		AllAuthorized: true,
		Decisions:     make(map[string]verifier.Decision, len(in.VerifierIDs)),
	}
	for _, id := range in.VerifierIDs {
		d, err := a.verifier.Authorize(ctx, id, in.SubjectID, in.SubjectKind, in.Method)
		if err != nil {
			return AuthorizeVerifiersResult{}, err
		}
		res.Decisions[id] = d
		if !d.Authorized {
			res.AllAuthorized = false
			res.Unauthorized = append(res.Unauthorized, id)
		}
	}
	return res, nil
}

// RecordConfirmations persists the verifier confirmations of an attempt.
func (a *Activities) RecordConfirmations(ctx context.Context, in RecordConfirmationsInput) error {
	return a.store.RecordConfirmations(ctx, in.Confirmations)
}

// RevokeConfirmations is the compensation inverse of RecordConfirmations.
func (a *Activities) RevokeConfirmations(ctx context.Context, in AttemptRefInput) error {
	n, err := a.store.RevokeConfirmations(ctx, in.AttemptID)
	if err != nil {
		return err
	}
	if n > 0 {
		a.metrics.CompensationsRan.WithLabelValues("revoke_confirmations").Inc()
	}
	return nil
}

// UpsertCompletion records a method completion with its points and expiry.
func (a *Activities) UpsertCompletion(ctx context.Context, c store.MethodCompletion) error {
	start := time.Now()
	err := a.store.UpsertCompletion(ctx, c)
	a.metrics.StoreWriteDuration.WithLabelValues("upsert_completion").Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	a.metrics.PointsAwarded.WithLabelValues(string(c.Method)).Add(float64(c.PointsAwarded))
	return nil
}

// RetractCompletion is the compensation inverse of UpsertCompletion, also
// used by explicit revocation.
func (a *Activities) RetractCompletion(ctx context.Context, in RetractCompletionInput) error {
	if err := a.store.RetractCompletion(ctx, in.SubjectID, in.Method); err != nil {
		return err
	}
	a.metrics.CompensationsRan.WithLabelValues("retract_completion").Inc()
	return nil
}

// UpsertAttempt mirrors the workflow's attempt record into storage for
// operational queries.
func (a *Activities) UpsertAttempt(ctx context.Context, att *attempt.Attempt) error {
	if err := a.store.UpsertAttempt(ctx, att); err != nil {
		return err
	}
	a.metrics.AttemptsStarted.WithLabelValues(string(att.Method)).Inc()
	return nil
}

// UpdateAttemptState moves the stored attempt record.
func (a *Activities) UpdateAttemptState(ctx context.Context, in UpdateAttemptStateInput) error {
	st := attempt.State(in.State)
	if err := a.store.UpdateAttemptState(ctx, in.AttemptID, st, in.SagaStep); err != nil {
		return err
	}
	if st.IsTerminal() {
		a.metrics.AttemptsFinished.WithLabelValues(string(in.Method), in.State).Inc()
	}
	return nil
}

// GenerateCode produces a six digit verification code.
func (a *Activities) GenerateCode(ctx context.Context) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// SendCode dispatches a verification code to the subject's email or phone.
func (a *Activities) SendCode(ctx context.Context, in SendCodeInput) error {
	n := notify.NewNotification(in.SubjectID, notify.KindVerificationCode, map[string]interface{}{
		"channel":     in.Channel,
		"destination": in.Destination,
		"code":        in.Code,
	})
	return a.notifier.Dispatch(ctx, n)
}

// NotifyLevelChange announces a trust level transition to the subject.
func (a *Activities) NotifyLevelChange(ctx context.Context, in NotifyLevelChangeInput) error {
	direction := "upgrade"
	if scoring.ParseLevel(in.NewLevel) < scoring.ParseLevel(in.OldLevel) {
		direction = "downgrade"
	}
	a.metrics.LevelChanges.WithLabelValues(direction).Inc()
	n := notify.NewNotification(in.SubjectID, notify.KindLevelChange, map[string]interface{}{
		"old_level": in.OldLevel,
		"new_level": in.NewLevel,
		"score":     in.Score,
	})
	return a.notifier.Dispatch(ctx, n)
}

// NotifyFailure announces a failed, rejected or expired attempt.
func (a *Activities) NotifyFailure(ctx context.Context, in NotifyFailureInput) error {
	kind := in.Kind
	if kind == "" {
		kind = notify.KindVerificationFailed
	}
	n := notify.NewNotification(in.SubjectID, kind, map[string]interface{}{
		"method": string(in.Method),
		"reason": in.Reason,
	})
	return a.notifier.Dispatch(ctx, n)
}

// ValidateDocument runs pre-review checks on an uploaded document.
func (a *Activities) ValidateDocument(ctx context.Context, in ValidateDocumentInput) (ValidateDocumentResult, error) {
	return a.scanner.Scan(ctx, in)
}

// EnqueueForReview submits a validated document to the human review queue.
func (a *Activities) EnqueueForReview(ctx context.Context, in EnqueueForReviewInput) error {
	return a.reviews.Enqueue(ctx, in)
}

// CreditVerifiers bumps the attestation counters of the verifiers who
// completed a two-party verification.
func (a *Activities) CreditVerifiers(ctx context.Context, in CreditVerifiersInput) error {
	for _, id := range in.VerifierIDs {
		if err := a.store.IncrementAttestedCount(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// randomToken returns 24 bytes of entropy as an unpadded URL-safe string.
func randomToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
