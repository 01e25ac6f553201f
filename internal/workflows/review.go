package workflows

import (
	"strconv"

	"go.temporal.io/sdk/workflow"

	"github.com/nabr/verification/internal/activities"
	"github.com/nabr/verification/internal/attempt"
	"github.com/nabr/verification/internal/notify"
)

// DocumentReviewWorkflow drives the human-reviewed document methods
// (government ID, business license, tax ID, 501c3 determination). The
// document is structurally validated, queued for a
// reviewer, and the workflow waits on a reviewer_decision signal.
func DocumentReviewWorkflow(ctx workflow.Context, in ChildInput) (MethodOutcome, error) {
	outcome := MethodOutcome{AttemptID: in.AttemptID, Method: in.Method}

	handle := in.Params["document_handle"]
	actx := withActivityOptions(ctx)

	var validation activities.ValidateDocumentResult
	sizeBytes := parseSize(in.Params["size_bytes"])
	err := workflow.ExecuteActivity(actx, activities.NameValidateDocument, activities.ValidateDocumentInput{
		DocumentHandle: handle,
		DocumentType:   in.Params["document_type"],
		SizeBytes:      sizeBytes,
	}).Get(actx, &validation)
	if err != nil || !validation.Valid {
		reason := validation.Reason
		if err != nil {
			reason = "document validation unavailable"
		}
		setAttemptState(ctx, in, attempt.StateRejected, 0)
		notifyFailure(ctx, in, notify.KindVerificationFailed, reason)
		outcome.Kind = OutcomeInvalidInput
		outcome.Reason = reason
		return outcome, nil
	}

	if err := workflow.ExecuteActivity(actx, activities.NameEnqueueForReview, activities.EnqueueForReviewInput{
		AttemptID:      in.AttemptID,
		SubjectID:      in.SubjectID,
		Method:         in.Method,
		DocumentHandle: handle,
	}).Get(actx, nil); err != nil {
		setAttemptState(ctx, in, attempt.StateRejected, 0)
		outcome.Kind = OutcomeRejected
		outcome.Reason = "review enqueue failed"
		return outcome, nil
	}

	setAttemptState(ctx, in, attempt.StateAwaitingParties, 1)

	decisionCh := workflow.GetSignalChannel(ctx, SignalReviewerDecision)
	timerCtx, cancelTimer := workflow.WithCancel(ctx)
	deadline := workflow.NewTimer(timerCtx, in.Deadline)
	defer cancelTimer()

	for {
		var (
			sig      ReviewerDecisionSignal
			timedOut bool
		)
		received := false

		sel := workflow.NewSelector(ctx)
		sel.AddReceive(decisionCh, func(ch workflow.ReceiveChannel, _ bool) {
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
			setAttemptState(ctx, in, attempt.StateRejected, 1)
			outcome.Kind = OutcomeCancelled
			return outcome, nil
		}
		if timedOut {
			setAttemptState(ctx, in, attempt.StateExpired, 1)
			notifyFailure(ctx, in, notify.KindAttemptExpired, "no reviewer decision before deadline")
			outcome.Kind = OutcomeTimeout
			return outcome, nil
		}
		if !received || sig.AttemptID != in.AttemptID {
			continue
		}

		setAttemptState(ctx, in, attempt.StateValidating, 2)
		if sig.Decision != "approve" {
			setAttemptState(ctx, in, attempt.StateRejected, 2)
			notifyFailure(ctx, in, notify.KindReviewerRejected, sig.Notes)
			outcome.Kind = OutcomeRejected
			outcome.Reason = "rejected by reviewer"
			return outcome, nil
		}

		setAttemptState(ctx, in, attempt.StateCompleted, 3)
		outcome.Kind = OutcomeCompleted
		outcome.Proposal = &CompletionProposal{
			Method:      in.Method,
			CompletedAt: workflow.Now(ctx).UTC(),
			Metadata: map[string]string{
				"reviewer_id":     sig.ReviewerID,
				"document_handle": handle,
			},
		}
		return outcome, nil
	}
}

func parseSize(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
