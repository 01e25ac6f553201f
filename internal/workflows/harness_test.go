package workflows

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/nabr/verification/internal/activities"
	"github.com/nabr/verification/internal/attempt"
	"github.com/nabr/verification/internal/audit"
	"github.com/nabr/verification/internal/store"
)

// stubActivities is an in-memory stand-in for the worker's activity set.
// Token consumption mimics the store's compare-and-set semantics so the
// two-party saga sees realistic conflict outcomes.
type stubActivities struct {
	mu sync.Mutex

	events        []audit.Event
	completions   []store.MethodCompletion
	retractions   []activities.RetractCompletionInput
	confirmations [][]store.Confirmation
	revoked       []string
	invalidated   []string
	attemptStates []activities.UpdateAttemptStateInput
	levelChanges  []activities.NotifyLevelChangeInput
	failures      []activities.NotifyFailureInput
	sentCodes     []activities.SendCodeInput
	credited      [][]string

	tokens       map[string]*stubToken
	code         string
	unauthorized map[string]bool
}

type stubToken struct {
	slot       int
	consumedBy string
	expired    bool
}

func newStubActivities() *stubActivities {
	return &stubActivities{
		tokens:       make(map[string]*stubToken),
		code:         "123456",
		unauthorized: make(map[string]bool),
	}
}

func (s *stubActivities) eventKinds() []audit.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]audit.Kind, len(s.events))
	for i, e := range s.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func (s *stubActivities) countKind(k audit.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

type testEnv interface {
	RegisterActivityWithOptions(interface{}, activity.RegisterOptions)
}

func (s *stubActivities) register(env testEnv) {
	reg := func(name string, fn interface{}) {
		env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
	}

	reg(activities.NameRecordAuditEvent, func(_ context.Context, e audit.Event) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, existing := range s.events {
			if existing.EventID == e.EventID {
				return nil
			}
		}
		s.events = append(s.events, e)
		return nil
	})

	reg(activities.NameIssueQRTokens, func(_ context.Context, in activities.IssueQRTokensInput) (activities.IssueQRTokensResult, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		res := activities.IssueQRTokensResult{}
		for slot := 1; slot <= 2; slot++ {
			tok := fmt.Sprintf("tok-%d", slot)
			if _, ok := s.tokens[tok]; !ok {
				s.tokens[tok] = &stubToken{slot: slot}
			}
			res.Tokens = append(res.Tokens, activities.IssuedToken{
				Slot:      slot,
				Token:     tok,
				URI:       "https://nabr.app/verify/" + in.AttemptID + "/" + tok,
				ExpiresAt: time.Now().Add(72 * time.Hour),
			})
		}
		return res, nil
	})

	reg(activities.NameConsumeQRToken, func(_ context.Context, in activities.ConsumeQRTokenInput) (store.ConsumeResult, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		tok, ok := s.tokens[in.Token]
		if !ok {
			return store.ConsumeResult{Outcome: store.ConsumeInvalid}, nil
		}
		if tok.expired {
			return store.ConsumeResult{Outcome: store.ConsumeExpired, Slot: tok.slot}, nil
		}
		switch tok.consumedBy {
		case "":
			tok.consumedBy = in.VerifierID
			return store.ConsumeResult{Outcome: store.ConsumeOK, Slot: tok.slot}, nil
		case in.VerifierID:
			return store.ConsumeResult{Outcome: store.ConsumeAlreadyConsumedBySame, Slot: tok.slot}, nil
		default:
			return store.ConsumeResult{Outcome: store.ConsumeAlreadyConsumedByOther, Slot: tok.slot}, nil
		}
	})

	reg(activities.NameInvalidateQRTokens, func(_ context.Context, in activities.AttemptRefInput) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.invalidated = append(s.invalidated, in.AttemptID)
		for _, tok := range s.tokens {
			tok.expired = true
		}
		return nil
	})

	reg(activities.NameAuthorizeVerifiers, func(_ context.Context, in activities.AuthorizeVerifiersInput) (activities.AuthorizeVerifiersResult, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		res := activities.AuthorizeVerifiersResult{AllAuthorized: true}
		for _, id := range in.VerifierIDs {
			if s.unauthorized[id] {
				res.AllAuthorized = false
				res.Unauthorized = append(res.Unauthorized, id)
			}
		}
		return res, nil
	})

	reg(activities.NameRecordConfirmations, func(_ context.Context, in activities.RecordConfirmationsInput) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.confirmations = append(s.confirmations, in.Confirmations)
		return nil
	})

	reg(activities.NameRevokeConfirmations, func(_ context.Context, in activities.AttemptRefInput) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.revoked = append(s.revoked, in.AttemptID)
		return nil
	})

	reg(activities.NameUpsertCompletion, func(_ context.Context, c store.MethodCompletion) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.completions = append(s.completions, c)
		return nil
	})

	reg(activities.NameRetractCompletion, func(_ context.Context, in activities.RetractCompletionInput) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.retractions = append(s.retractions, in)
		return nil
	})

	reg(activities.NameUpsertAttempt, func(_ context.Context, _ *attempt.Attempt) error {
		return nil
	})

	reg(activities.NameUpdateAttemptState, func(_ context.Context, in activities.UpdateAttemptStateInput) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.attemptStates = append(s.attemptStates, in)
		return nil
	})

	reg(activities.NameGenerateCode, func(context.Context) (string, error) {
		return s.code, nil
	})

	reg(activities.NameSendCode, func(_ context.Context, in activities.SendCodeInput) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.sentCodes = append(s.sentCodes, in)
		return nil
	})

	reg(activities.NameNotifyLevelChange, func(_ context.Context, in activities.NotifyLevelChangeInput) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.levelChanges = append(s.levelChanges, in)
		return nil
	})

	reg(activities.NameNotifyFailure, func(_ context.Context, in activities.NotifyFailureInput) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.failures = append(s.failures, in)
		return nil
	})

	reg(activities.NameValidateDocument, func(_ context.Context, in activities.ValidateDocumentInput) (activities.ValidateDocumentResult, error) {
		if in.DocumentHandle == "" {
			return activities.ValidateDocumentResult{Reason: "missing document handle"}, nil
		}
		return activities.ValidateDocumentResult{Valid: true}, nil
	})

	reg(activities.NameEnqueueForReview, func(_ context.Context, _ activities.EnqueueForReviewInput) error {
		return nil
	})

	reg(activities.NameCreditVerifiers, func(_ context.Context, in activities.CreditVerifiersInput) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.credited = append(s.credited, in.VerifierIDs)
		return nil
	})
}

// lastAttemptState returns the final mirrored store state of an attempt.
func (s *stubActivities) lastAttemptState(attemptID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	last := ""
	for _, st := range s.attemptStates {
		if st.AttemptID == attemptID {
			last = st.State
		}
	}
	return last
}
