package workflows

import (
	"go.temporal.io/sdk/workflow"

	"github.com/nabr/verification/internal/activities"
	"github.com/nabr/verification/internal/attempt"
	"github.com/nabr/verification/internal/audit"
	"github.com/nabr/verification/internal/notify"
	"github.com/nabr/verification/internal/store"
)

// Compensation inverse labels, matched to their audit event kinds.
const (
	inverseInvalidateQRTokens  = "invalidate_qr_tokens"
	inverseRevokeConfirmations = "revoke_confirmations"
)

// TwoPartyWorkflow runs the in-person two-party verification saga. Two
// single-use QR tokens are issued, one per verifier slot; two distinct
// authorized verifiers must each consume one within the deadline. Every
// durable step registers its inverse, and any failure after issuance
// unwinds the stack.
func TwoPartyWorkflow(ctx workflow.Context, in ChildInput) (MethodOutcome, error) {
	logger := workflow.GetLogger(ctx)
	seq := 0
	aud := newAuditor(ctx, &seq)
	outcome := MethodOutcome{AttemptID: in.AttemptID, Method: in.Method}
	var comp compensations

	// Step 1: issue both slot tokens.
	actx := withStoreOptions(ctx)
	var issued activities.IssueQRTokensResult
	err := workflow.ExecuteActivity(actx, activities.NameIssueQRTokens, activities.IssueQRTokensInput{
		AttemptID: in.AttemptID,
		SubjectID: in.SubjectID,
	}).Get(actx, &issued)
	if err != nil || len(issued.Tokens) != 2 {
		setAttemptState(ctx, in, attempt.StateRejected, 0)
		outcome.Kind = OutcomeRejected
		outcome.Reason = "token issuance failed"
		return outcome, nil
	}
	comp.Push(inverseInvalidateQRTokens, func(c workflow.Context) error {
		sctx := withStoreOptions(c)
		return workflow.ExecuteActivity(sctx, activities.NameInvalidateQRTokens,
			activities.AttemptRefInput{AttemptID: in.AttemptID, SubjectID: in.SubjectID}).Get(sctx, nil)
	})

	tokenSlot := make(map[string]int, 2)
	for _, t := range issued.Tokens {
		tokenSlot[t.Token] = t.Slot
		aud.record(ctx, audit.Event{
			SubjectID: in.SubjectID,
			Kind:      audit.KindQRIssued,
			Method:    string(in.Method),
			AttemptID: in.AttemptID,
			Data:      map[string]interface{}{"slot": t.Slot, "expires_at": t.ExpiresAt},
		})
	}

	setAttemptState(ctx, in, attempt.StateAwaitingParties, 1)

	// Step 2: await both confirmations.
	slots := make(map[int]*filledSlot, 2)

	confirmCh := workflow.GetSignalChannel(ctx, SignalVerifierConfirmation)
	timerCtx, cancelTimer := workflow.WithCancel(ctx)
	deadline := workflow.NewTimer(timerCtx, in.Deadline)
	defer cancelTimer()

	for len(slots) < 2 {
		var (
			sig      VerifierConfirmationSignal
			timedOut bool
		)
		received := false

		sel := workflow.NewSelector(ctx)
		sel.AddReceive(confirmCh, func(ch workflow.ReceiveChannel, _ bool) {
			ch.Receive(ctx, &sig)
			received = true
		})
		sel.AddFuture(deadline, func(workflow.Future) {
			if timerCtx.Err() == nil {
				timedOut = true
			}
		})
		sel.Select(ctx)

		if ctx.Err() != nil {
			runCompensations(ctx, aud, in, &comp)
			setAttemptState(ctx, in, attempt.StateRejected, len(slots)+1)
			outcome.Kind = OutcomeCancelled
			return outcome, nil
		}
		if timedOut {
			runCompensations(ctx, aud, in, &comp)
			setAttemptState(ctx, in, attempt.StateExpired, len(slots)+1)
			notifyFailure(ctx, in, notify.KindAttemptExpired, "verifiers did not confirm in time")
			outcome.Kind = OutcomeTimeout
			return outcome, nil
		}
		if !received {
			continue
		}

		slot, known := tokenSlot[sig.Token]
		if !known {
			aud.record(ctx, audit.Event{
				SubjectID: in.SubjectID,
				Kind:      audit.KindQRConsumed,
				ActorID:   sig.VerifierID,
				Method:    string(in.Method),
				AttemptID: in.AttemptID,
				Data:      map[string]interface{}{"outcome": string(store.ConsumeInvalid)},
			})
			continue
		}
		if prev, ok := slots[slot]; ok {
			if prev.verifierID == sig.VerifierID {
				// Redelivery of an applied signal, nothing new to record.
				continue
			}
			aud.record(ctx, audit.Event{
				SubjectID: in.SubjectID,
				Kind:      audit.KindQRConsumed,
				ActorID:   sig.VerifierID,
				Method:    string(in.Method),
				AttemptID: in.AttemptID,
				Data:      map[string]interface{}{"outcome": string(store.ConsumeAlreadyConsumedByOther), "slot": slot},
			})
			continue
		}
		if otherSlotHeldBy(slots, slot, sig.VerifierID) {
			logger.Info("verifier already holds the other slot", "verifier_id", sig.VerifierID)
			aud.record(ctx, audit.Event{
				SubjectID: in.SubjectID,
				Kind:      audit.KindQRConsumed,
				ActorID:   sig.VerifierID,
				Method:    string(in.Method),
				AttemptID: in.AttemptID,
				Data:      map[string]interface{}{"outcome": "same_verifier_conflict", "slot": slot},
			})
			continue
		}

		var res store.ConsumeResult
		cctx := withStoreOptions(ctx)
		err := workflow.ExecuteActivity(cctx, activities.NameConsumeQRToken, activities.ConsumeQRTokenInput{
			Token:      sig.Token,
			VerifierID: sig.VerifierID,
		}).Get(cctx, &res)
		if err != nil {
			logger.Error("token consumption failed", "error", err)
			continue
		}
		if res.Outcome == store.ConsumeAlreadyConsumedBySame {
			// Store already applied this exact (token, verifier) pair.
			res.Outcome = store.ConsumeOK
		}
		if res.Outcome != store.ConsumeOK {
			aud.record(ctx, audit.Event{
				SubjectID: in.SubjectID,
				Kind:      audit.KindQRConsumed,
				ActorID:   sig.VerifierID,
				Method:    string(in.Method),
				AttemptID: in.AttemptID,
				Data:      map[string]interface{}{"outcome": string(res.Outcome), "slot": slot},
			})
			continue
		}

		slots[slot] = &filledSlot{
			verifierID: sig.VerifierID,
			confirmed: store.Confirmation{
				AttemptID:   in.AttemptID,
				Slot:        slot,
				VerifierID:  sig.VerifierID,
				ConfirmedAt: workflow.Now(ctx).UTC(),
				Location:    sig.Location,
				DeviceFP:    sig.DeviceFP,
			},
		}
		if len(slots) == 1 {
			comp.Push(inverseRevokeConfirmations, func(c workflow.Context) error {
				sctx := withStoreOptions(c)
				return workflow.ExecuteActivity(sctx, activities.NameRevokeConfirmations,
					activities.AttemptRefInput{AttemptID: in.AttemptID, SubjectID: in.SubjectID}).Get(sctx, nil)
			})
		}
		aud.record(ctx, audit.Event{
			SubjectID: in.SubjectID,
			Kind:      audit.KindQRConsumed,
			ActorID:   sig.VerifierID,
			Method:    string(in.Method),
			AttemptID: in.AttemptID,
			Data:      map[string]interface{}{"outcome": string(store.ConsumeOK), "slot": slot},
		})
	}
	cancelTimer()

	// Step 3: both slots filled, authorize both verifiers in one call.
	setAttemptState(ctx, in, attempt.StateValidating, 2)
	verifierIDs := []string{slots[1].verifierID, slots[2].verifierID}

	var authz activities.AuthorizeVerifiersResult
	aactx := withActivityOptions(ctx)
	err = workflow.ExecuteActivity(aactx, activities.NameAuthorizeVerifiers, activities.AuthorizeVerifiersInput{
		SubjectID:   in.SubjectID,
		SubjectKind: in.SubjectKind,
		Method:      in.Method,
		VerifierIDs: verifierIDs,
	}).Get(aactx, &authz)
	if err != nil || !authz.AllAuthorized {
		reason := "verifier authorization unavailable"
		kind := OutcomeRejected
		if err == nil {
			reason = "unauthorized verifier"
			kind = OutcomeVerifierUnauthorized
		}
		runCompensations(ctx, aud, in, &comp)
		setAttemptState(ctx, in, attempt.StateRejected, 3)
		notifyFailure(ctx, in, notify.KindVerificationFailed, reason)
		outcome.Kind = kind
		outcome.Reason = reason
		return outcome, nil
	}

	// Step 4: persist both confirmations in one activity.
	sctx := withStoreOptions(ctx)
	err = workflow.ExecuteActivity(sctx, activities.NameRecordConfirmations, activities.RecordConfirmationsInput{
		Confirmations: []store.Confirmation{slots[1].confirmed, slots[2].confirmed},
	}).Get(sctx, nil)
	if err != nil {
		runCompensations(ctx, aud, in, &comp)
		setAttemptState(ctx, in, attempt.StateRejected, 4)
		outcome.Kind = OutcomeRejected
		outcome.Reason = "confirmation persistence failed"
		return outcome, nil
	}
	for slot := 1; slot <= 2; slot++ {
		aud.record(ctx, audit.Event{
			SubjectID: in.SubjectID,
			Kind:      audit.KindConfirmationRecorded,
			ActorID:   slots[slot].verifierID,
			Method:    string(in.Method),
			AttemptID: in.AttemptID,
			Data:      map[string]interface{}{"slot": slot},
		})
	}

	// Step 5: commit. Verifier credit is best effort.
	if err := workflow.ExecuteActivity(aactx, activities.NameCreditVerifiers,
		activities.CreditVerifiersInput{VerifierIDs: verifierIDs}).Get(aactx, nil); err != nil {
		logger.Error("verifier credit failed", "error", err)
	}
	comp.Clear()
	setAttemptState(ctx, in, attempt.StateCompleted, 5)

	outcome.Kind = OutcomeCompleted
	outcome.Proposal = &CompletionProposal{
		Method:      in.Method,
		CompletedAt: workflow.Now(ctx).UTC(),
		VerifierIDs: verifierIDs,
	}
	return outcome, nil
}

// filledSlot tracks one consumed verifier slot before persistence.
type filledSlot struct {
	verifierID string
	confirmed  store.Confirmation
}

func otherSlotHeldBy(slots map[int]*filledSlot, slot int, verifierID string) bool {
	for s, f := range slots {
		if s != slot && f.verifierID == verifierID {
			return true
		}
	}
	return false
}

// runCompensations unwinds the stack and audits what ran.
func runCompensations(ctx workflow.Context, aud *auditor, in ChildInput, comp *compensations) {
	ran := comp.Execute(ctx)
	if len(ran) == 0 {
		return
	}
	dctx, _ := workflow.NewDisconnectedContext(ctx)
	for _, inverse := range ran {
		kind := audit.KindCompensationRan
		switch inverse {
		case inverseInvalidateQRTokens:
			kind = audit.KindQRInvalidated
		case inverseRevokeConfirmations:
			kind = audit.KindConfirmationRevoked
		}
		aud.record(dctx, audit.Event{
			SubjectID: in.SubjectID,
			Kind:      kind,
			Method:    string(in.Method),
			AttemptID: in.AttemptID,
		})
	}
	aud.record(dctx, audit.Event{
		SubjectID: in.SubjectID,
		Kind:      audit.KindCompensationRan,
		Method:    string(in.Method),
		AttemptID: in.AttemptID,
		Data:      map[string]interface{}{"inverses": ran},
	})
}
