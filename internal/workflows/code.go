package workflows

import (
	"crypto/subtle"

	"go.temporal.io/sdk/workflow"

	"github.com/nabr/verification/internal/activities"
	"github.com/nabr/verification/internal/attempt"
	"github.com/nabr/verification/internal/audit"
	"github.com/nabr/verification/internal/notify"
	"github.com/nabr/verification/internal/scoring"
)

// maxCodeSubmissions bounds wrong guesses before the attempt is rejected.
const maxCodeSubmissions = 3

// CodeWorkflow verifies control of an email address or phone number. A six
// digit code is generated and dispatched by activities, then the workflow
// waits for submit_code signals until the code matches, the guess budget is
// spent, or the deadline passes.
func CodeWorkflow(ctx workflow.Context, in ChildInput) (MethodOutcome, error) {
	logger := workflow.GetLogger(ctx)
	seq := 0
	aud := newAuditor(ctx, &seq)
	outcome := MethodOutcome{AttemptID: in.AttemptID, Method: in.Method}

	channel := "email"
	if in.Method == scoring.MethodPhone {
		channel = "phone"
	}
	destination := in.Params["destination"]
	if destination == "" {
		outcome.Kind = OutcomeInvalidInput
		outcome.Reason = "missing destination"
		setAttemptState(ctx, in, attempt.StateRejected, 0)
		return outcome, nil
	}

	actx := withActivityOptions(ctx)
	var code string
	if err := workflow.ExecuteActivity(actx, activities.NameGenerateCode).Get(actx, &code); err != nil {
		outcome.Kind = OutcomeRejected
		outcome.Reason = "code generation failed"
		setAttemptState(ctx, in, attempt.StateRejected, 0)
		return outcome, nil
	}
	if err := workflow.ExecuteActivity(actx, activities.NameSendCode, activities.SendCodeInput{
		SubjectID:   in.SubjectID,
		Channel:     channel,
		Destination: destination,
		Code:        code,
	}).Get(actx, nil); err != nil {
		outcome.Kind = OutcomeRejected
		outcome.Reason = "code dispatch failed"
		setAttemptState(ctx, in, attempt.StateRejected, 0)
		return outcome, nil
	}

	setAttemptState(ctx, in, attempt.StateAwaitingParties, 1)

	submitCh := workflow.GetSignalChannel(ctx, SignalSubmitCode)
	timerCtx, cancelTimer := workflow.WithCancel(ctx)
	deadline := workflow.NewTimer(timerCtx, in.Deadline)
	defer cancelTimer()

	wrong := 0
	for {
		var (
			sig      SubmitCodeSignal
			timedOut bool
		)
		received := false

		sel := workflow.NewSelector(ctx)
		sel.AddReceive(submitCh, func(ch workflow.ReceiveChannel, _ bool) {
			ch.Receive(ctx, &sig)
			received = true
		})
		sel.AddFuture(deadline, func(f workflow.Future) {
			if timerCtx.Err() == nil {
				timedOut = true
			}
		})
		sel.Select(ctx)

		if ctx.Err() != nil {
			outcome.Kind = OutcomeCancelled
			setAttemptState(ctx, in, attempt.StateRejected, 1)
			return outcome, nil
		}
		if timedOut {
			setAttemptState(ctx, in, attempt.StateExpired, 1)
			notifyFailure(ctx, in, notify.KindAttemptExpired, "code not submitted in time")
			outcome.Kind = OutcomeTimeout
			return outcome, nil
		}
		if !received || sig.AttemptID != in.AttemptID {
			continue
		}

		if subtle.ConstantTimeCompare([]byte(sig.Code), []byte(code)) == 1 {
			break
		}
		wrong++
		logger.Info("wrong code submitted", "attempt_id", in.AttemptID, "wrong", wrong)
		if wrong >= maxCodeSubmissions {
			setAttemptState(ctx, in, attempt.StateRejected, 1)
			notifyFailure(ctx, in, notify.KindVerificationFailed, "too many wrong codes")
			outcome.Kind = OutcomeRejected
			outcome.Reason = "too many wrong codes"
			return outcome, nil
		}
	}

	setAttemptState(ctx, in, attempt.StateValidating, 2)
	aud.record(ctx, audit.Event{
		SubjectID: in.SubjectID,
		Kind:      audit.KindAttemptStateChanged,
		Method:    string(in.Method),
		AttemptID: in.AttemptID,
		Data:      map[string]interface{}{"state": string(attempt.StateValidating)},
	})
	setAttemptState(ctx, in, attempt.StateCompleted, 3)

	outcome.Kind = OutcomeCompleted
	outcome.Proposal = &CompletionProposal{
		Method:      in.Method,
		CompletedAt: workflow.Now(ctx).UTC(),
		Metadata:    map[string]string{"channel": channel},
	}
	return outcome, nil
}

// setAttemptState mirrors an attempt state change into the store. Failures
// are logged and swallowed: the workflow's own history is the source of
// truth, the store row is an operational mirror.
func setAttemptState(ctx workflow.Context, in ChildInput, state attempt.State, sagaStep int) {
	dctx, _ := workflow.NewDisconnectedContext(ctx)
	actx := withStoreOptions(dctx)
	err := workflow.ExecuteActivity(actx, activities.NameUpdateAttemptState, activities.UpdateAttemptStateInput{
		AttemptID: in.AttemptID,
		Method:    in.Method,
		State:     string(state),
		SagaStep:  sagaStep,
	}).Get(actx, nil)
	if err != nil {
		workflow.GetLogger(ctx).Error("attempt state mirror failed",
			"attempt_id", in.AttemptID, "state", state, "error", err)
	}
}

// notifyFailure dispatches a user-visible failure notification.
func notifyFailure(ctx workflow.Context, in ChildInput, kind, reason string) {
	dctx, _ := workflow.NewDisconnectedContext(ctx)
	actx := withActivityOptions(dctx)
	err := workflow.ExecuteActivity(actx, activities.NameNotifyFailure, activities.NotifyFailureInput{
		SubjectID: in.SubjectID,
		Method:    in.Method,
		Kind:      kind,
		Reason:    reason,
	}).Get(actx, nil)
	if err != nil {
		workflow.GetLogger(ctx).Error("failure notification failed",
			"attempt_id", in.AttemptID, "error", err)
	}
}
