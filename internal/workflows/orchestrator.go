package workflows

import (
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	sdklog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/workflow"

	"github.com/nabr/verification/internal/activities"
	"github.com/nabr/verification/internal/attempt"
	"github.com/nabr/verification/internal/audit"
	"github.com/nabr/verification/internal/scoring"
	"github.com/nabr/verification/internal/store"
)

// expirySweepInterval is how often the orchestrator re-checks completion
// expiry when nothing else wakes it.
const expirySweepInterval = 30 * 24 * time.Hour

// continueAsNewAfter bounds the main loop iterations of one instance. The
// actual restart is deferred until no attempt is in flight, which child
// deadlines bound to at most seven days.
const continueAsNewAfter = 1000

// SubjectVerificationWorkflow is the long-lived per-subject orchestrator.
// It owns the subject's trust state, spawns one child workflow per active
// verification attempt, routes inbound signals to the owning child,
// recomputes score and level after every durable change, and restarts
// itself with a state snapshot to keep its history bounded.
func SubjectVerificationWorkflow(ctx workflow.Context, in OrchestratorInput) error {
	logger := workflow.GetLogger(ctx)

	state := in.Snapshot
	fresh := state == nil
	if fresh {
		state = &TrustState{
			SubjectID:        in.SubjectID,
			SubjectKind:      in.SubjectKind,
			Completions:      make(map[scoring.Method]*CompletionState),
			ActiveAttempts:   make(map[string]*AttemptRef),
			LastExpirySweep:  workflow.Now(ctx).UTC(),
			HistoryMilestone: make(map[string]bool),
		}
	} else {
		state.Generation++
		if state.Completions == nil {
			state.Completions = make(map[scoring.Method]*CompletionState)
		}
		if state.ActiveAttempts == nil {
			state.ActiveAttempts = make(map[string]*AttemptRef)
		}
		if state.HistoryMilestone == nil {
			state.HistoryMilestone = make(map[string]bool)
		}
	}

	o := &orchestrator{
		state:    state,
		children: make(map[string]childHandle),
		aud:      newAuditor(ctx, &state.AuditSeq),
		logger:   logger,
	}
	o.level = o.levelNow(ctx)

	if err := o.registerQueries(ctx); err != nil {
		return err
	}

	o.aud.record(ctx, audit.Event{
		SubjectID: state.SubjectID,
		Kind:      audit.KindOrchestratorStarted,
		Data: map[string]interface{}{
			"generation": state.Generation,
			"fresh":      fresh,
		},
	})

	// Children of a previous instance do not survive continue-as-new, so a
	// hydrated instance respawns every non-terminal attempt it carried.
	for _, id := range sortedAttemptIDs(state.ActiveAttempts) {
		o.respawn(ctx, state.ActiveAttempts[id])
	}

	startCh := workflow.GetSignalChannel(ctx, SignalStartMethod)
	confirmCh := workflow.GetSignalChannel(ctx, SignalVerifierConfirmation)
	reviewCh := workflow.GetSignalChannel(ctx, SignalReviewerDecision)
	codeCh := workflow.GetSignalChannel(ctx, SignalSubmitCode)
	attestCh := workflow.GetSignalChannel(ctx, SignalCommunityAttestation)
	revokeCh := workflow.GetSignalChannel(ctx, SignalRevokeMethod)
	historyCh := workflow.GetSignalChannel(ctx, SignalHistoryMilestone)
	terminateCh := workflow.GetSignalChannel(ctx, SignalTerminate)

	iterations := 0
	terminating := false
	var terminateReason string

	for {
		sweep := workflow.NewTimer(ctx, o.nextSweepIn(ctx))
		sweepFired := false

		sel := workflow.NewSelector(ctx)
		sel.AddReceive(startCh, func(ch workflow.ReceiveChannel, _ bool) {
			var sig StartMethodSignal
			ch.Receive(ctx, &sig)
			if !terminating {
				o.handleStartMethod(ctx, sig)
			}
		})
		sel.AddReceive(confirmCh, func(ch workflow.ReceiveChannel, _ bool) {
			var sig VerifierConfirmationSignal
			ch.Receive(ctx, &sig)
			o.forwardToMethod(ctx, scoring.MethodInPersonTwoParty, SignalVerifierConfirmation, sig)
		})
		sel.AddReceive(reviewCh, func(ch workflow.ReceiveChannel, _ bool) {
			var sig ReviewerDecisionSignal
			ch.Receive(ctx, &sig)
			o.forwardToAttempt(ctx, sig.AttemptID, SignalReviewerDecision, sig)
		})
		sel.AddReceive(codeCh, func(ch workflow.ReceiveChannel, _ bool) {
			var sig SubmitCodeSignal
			ch.Receive(ctx, &sig)
			o.forwardToAttempt(ctx, sig.AttemptID, SignalSubmitCode, sig)
		})
		sel.AddReceive(attestCh, func(ch workflow.ReceiveChannel, _ bool) {
			var sig CommunityAttestationSignal
			ch.Receive(ctx, &sig)
			if !terminating {
				o.handleAttestation(ctx, sig)
			}
		})
		sel.AddReceive(revokeCh, func(ch workflow.ReceiveChannel, _ bool) {
			var sig RevokeMethodSignal
			ch.Receive(ctx, &sig)
			o.handleRevoke(ctx, sig)
		})
		sel.AddReceive(historyCh, func(ch workflow.ReceiveChannel, _ bool) {
			var sig HistoryMilestoneSignal
			ch.Receive(ctx, &sig)
			if !terminating {
				o.handleHistoryMilestone(ctx, sig)
			}
		})
		sel.AddReceive(terminateCh, func(ch workflow.ReceiveChannel, _ bool) {
			var sig TerminateSignal
			ch.Receive(ctx, &sig)
			terminating = true
			terminateReason = sig.Reason
			o.cancelAllAttempts()
		})
		sel.AddFuture(sweep, func(workflow.Future) {
			sweepFired = true
		})
		for _, id := range sortedAttemptIDs(o.state.ActiveAttempts) {
			h, ok := o.children[id]
			if !ok {
				continue
			}
			attemptID := id
			sel.AddFuture(h.future, func(f workflow.Future) {
				o.handleChildDone(ctx, attemptID, f)
			})
		}

		sel.Select(ctx)
		iterations++

		if sweepFired {
			o.expirySweep(ctx)
		}

		if terminating && len(o.state.ActiveAttempts) == 0 {
			o.aud.record(ctx, audit.Event{
				SubjectID: o.state.SubjectID,
				Kind:      audit.KindOrchestratorTerminated,
				Data:      map[string]interface{}{"reason": terminateReason},
			})
			return nil
		}

		if iterations >= continueAsNewAfter && len(o.state.ActiveAttempts) == 0 {
			// Drain signals delivered while this decision was made.
			if sel.HasPending() {
				continue
			}
			return workflow.NewContinueAsNewError(ctx, NameSubjectOrchestrator, OrchestratorInput{
				SubjectID:   o.state.SubjectID,
				SubjectKind: o.state.SubjectKind,
				Snapshot:    o.state,
			})
		}
	}
}

// childHandle tracks a spawned child workflow.
type childHandle struct {
	future workflow.ChildWorkflowFuture
	cancel workflow.CancelFunc
}

type orchestrator struct {
	state    *TrustState
	children map[string]childHandle
	aud      *auditor
	level    scoring.Level
	logger   sdklog.Logger
}

func (o *orchestrator) registerQueries(ctx workflow.Context) error {
	handlers := map[string]interface{}{
		QueryTrustScore: func() (int, error) { return o.scoreNow(ctx), nil },
		QueryLevel:      func() (string, error) { return o.levelNow(ctx).String(), nil },
		QueryCompletions: func() ([]CompletionState, error) {
			return o.completionList(), nil
		},
		QueryNextLevelInfo: func() (scoring.NextLevelInfo, error) {
			return scoring.NextLevel(o.scoreNow(ctx), o.state.SubjectKind, o.completedCounts(ctx)), nil
		},
		QueryActiveAttempts: func() ([]AttemptRef, error) {
			return o.attemptList(), nil
		},
		QueryStatus: func() (StatusSnapshot, error) {
			score := o.scoreNow(ctx)
			return StatusSnapshot{
				SubjectID:   o.state.SubjectID,
				SubjectKind: o.state.SubjectKind,
				TrustScore:  score,
				Level:       scoring.LevelForScore(score).String(),
				Completions: o.completionList(),
				Attempts:    o.attemptList(),
				NextLevel:   scoring.NextLevel(score, o.state.SubjectKind, o.completedCounts(ctx)),
				Generation:  o.state.Generation,
			}, nil
		},
	}
	for name, h := range handlers {
		if err := workflow.SetQueryHandler(ctx, name, h); err != nil {
			return err
		}
	}
	return nil
}

// scoreNow sums active completion points for the subject kind.
func (o *orchestrator) scoreNow(ctx workflow.Context) int {
	now := workflow.Now(ctx).UTC()
	score := 0
	for _, c := range o.state.Completions {
		if !c.Method.ApplicableTo(o.state.SubjectKind) {
			continue
		}
		if c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
			continue
		}
		score += c.Points
	}
	return score
}

func (o *orchestrator) levelNow(ctx workflow.Context) scoring.Level {
	return scoring.LevelForScore(o.scoreNow(ctx))
}

func (o *orchestrator) completedCounts(ctx workflow.Context) map[scoring.Method]int {
	now := workflow.Now(ctx).UTC()
	counts := make(map[scoring.Method]int, len(o.state.Completions))
	for m, c := range o.state.Completions {
		if c.ExpiresAt == nil || c.ExpiresAt.After(now) {
			counts[m] = c.Count
		}
	}
	return counts
}

func (o *orchestrator) completionList() []CompletionState {
	out := make([]CompletionState, 0, len(o.state.Completions))
	for _, m := range sortedMethods(o.state.Completions) {
		out = append(out, *o.state.Completions[m])
	}
	return out
}

func (o *orchestrator) attemptList() []AttemptRef {
	out := make([]AttemptRef, 0, len(o.state.ActiveAttempts))
	for _, id := range sortedAttemptIDs(o.state.ActiveAttempts) {
		out = append(out, *o.state.ActiveAttempts[id])
	}
	return out
}

// handleStartMethod validates and spawns a child attempt. Methods that are
// purely signal driven (attestations, history) have no child and are
// rejected here.
func (o *orchestrator) handleStartMethod(ctx workflow.Context, sig StartMethodSignal) {
	if !sig.Method.Valid() || !sig.Method.ApplicableTo(o.state.SubjectKind) {
		o.aud.record(ctx, audit.Event{
			SubjectID: o.state.SubjectID,
			Kind:      audit.KindAttemptStateChanged,
			Method:    string(sig.Method),
			Data:      map[string]interface{}{"error": "validation", "detail": "method not applicable"},
		})
		return
	}
	if childWorkflowFor(sig.Method) == "" {
		o.logger.Info("method has no child workflow, ignoring start",
			"method", sig.Method)
		return
	}
	for _, ref := range o.state.ActiveAttempts {
		if ref.Method == sig.Method {
			// Duplicate start is a no-op.
			return
		}
	}

	var attemptID string
	if err := workflow.SideEffect(ctx, func(workflow.Context) interface{} {
		return uuid.NewString()
	}).Get(&attemptID); err != nil {
		o.logger.Error("attempt id generation failed", "error", err)
		return
	}

	now := workflow.Now(ctx).UTC()
	deadline := scoring.Deadline(sig.Method)
	ref := &AttemptRef{
		AttemptID: attemptID,
		Method:    sig.Method,
		ChildID:   o.state.SubjectID + "/" + string(sig.Method) + "/" + attemptID,
		StartedAt: now,
		Deadline:  now.Add(deadline),
	}

	rec := attempt.New(attemptID, o.state.SubjectID, sig.Method, now)
	rec.Deadline = ref.Deadline
	rec.DocumentHandle = sig.Params["document_handle"]
	actx := withStoreOptions(ctx)
	if err := workflow.ExecuteActivity(actx, activities.NameUpsertAttempt, rec).Get(actx, nil); err != nil {
		o.logger.Error("attempt persistence failed", "method", sig.Method, "error", err)
		return
	}

	o.state.ActiveAttempts[attemptID] = ref
	o.spawn(ctx, ref, sig.Params)
	o.aud.record(ctx, audit.Event{
		SubjectID: o.state.SubjectID,
		Kind:      audit.KindAttemptStarted,
		Method:    string(sig.Method),
		AttemptID: attemptID,
		Data:      map[string]interface{}{"deadline": ref.Deadline},
	})
}

func (o *orchestrator) spawn(ctx workflow.Context, ref *AttemptRef, params map[string]string) {
	remaining := ref.Deadline.Sub(workflow.Now(ctx).UTC())
	cctx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
		WorkflowID:         ref.ChildID,
		WorkflowRunTimeout: remaining + time.Hour,
	})
	cctx, cancel := workflow.WithCancel(cctx)
	fut := workflow.ExecuteChildWorkflow(cctx, childWorkflowFor(ref.Method), ChildInput{
		AttemptID:   ref.AttemptID,
		SubjectID:   o.state.SubjectID,
		SubjectKind: o.state.SubjectKind,
		Method:      ref.Method,
		Params:      params,
		Deadline:    remaining,
	})
	o.children[ref.AttemptID] = childHandle{future: fut, cancel: cancel}
}

// respawn relaunches a carried-over attempt after continue-as-new, with the
// remaining share of its original deadline.
func (o *orchestrator) respawn(ctx workflow.Context, ref *AttemptRef) {
	now := workflow.Now(ctx).UTC()
	if !ref.Deadline.After(now) {
		delete(o.state.ActiveAttempts, ref.AttemptID)
		return
	}
	o.spawn(ctx, ref, nil)
}

func (o *orchestrator) cancelAllAttempts() {
	for _, id := range sortedAttemptIDs(o.state.ActiveAttempts) {
		if h, ok := o.children[id]; ok {
			h.cancel()
		}
		o.state.ActiveAttempts[id].Cancelling = true
	}
}

// forwardToMethod routes a signal to the active child running the given
// method. Without an active attempt the signal is dropped with an audit
// note.
func (o *orchestrator) forwardToMethod(ctx workflow.Context, m scoring.Method, signal string, payload interface{}) {
	for _, id := range sortedAttemptIDs(o.state.ActiveAttempts) {
		if o.state.ActiveAttempts[id].Method == m {
			o.forwardToAttempt(ctx, id, signal, payload)
			return
		}
	}
	o.aud.record(ctx, audit.Event{
		SubjectID: o.state.SubjectID,
		Kind:      audit.KindAttemptStateChanged,
		Method:    string(m),
		Data:      map[string]interface{}{"error": "conflict", "detail": "no active attempt for signal " + signal},
	})
}

func (o *orchestrator) forwardToAttempt(ctx workflow.Context, attemptID, signal string, payload interface{}) {
	ref, ok := o.state.ActiveAttempts[attemptID]
	if !ok {
		o.logger.Info("signal for unknown attempt dropped",
			"attempt_id", attemptID, "signal", signal)
		return
	}
	f := workflow.SignalExternalWorkflow(ctx, ref.ChildID, "", signal, payload)
	workflow.Go(ctx, func(gctx workflow.Context) {
		if err := f.Get(gctx, nil); err != nil {
			workflow.GetLogger(gctx).Error("signal forward failed",
				"attempt_id", attemptID, "signal", signal, "error", err)
		}
	})
}

// handleChildDone applies a finished attempt's outcome.
func (o *orchestrator) handleChildDone(ctx workflow.Context, attemptID string, f workflow.Future) {
	ref := o.state.ActiveAttempts[attemptID]
	delete(o.state.ActiveAttempts, attemptID)
	delete(o.children, attemptID)
	if ref == nil {
		return
	}

	var outcome MethodOutcome
	if err := f.Get(ctx, &outcome); err != nil {
		o.logger.Error("child workflow failed", "attempt_id", attemptID, "error", err)
		return
	}
	if outcome.Kind != OutcomeCompleted || outcome.Proposal == nil {
		o.logger.Info("attempt finished without completion",
			"attempt_id", attemptID, "method", ref.Method, "outcome", outcome.Kind)
		return
	}
	o.applyCompletion(ctx, outcome.AttemptID, outcome.Proposal, 1, nil)
}

// applyCompletion upserts a completion with freshly computed points and
// recomputes the level. Used for child results and inline attestations.
func (o *orchestrator) applyCompletion(ctx workflow.Context, attemptID string, p *CompletionProposal, count int, attestors []string) {
	points := scoring.Points(p.Method, count)
	var expiresAt *time.Time
	if d := scoring.Decay(p.Method); d > 0 {
		e := p.CompletedAt.Add(d)
		expiresAt = &e
	}

	meta := make(map[string]interface{}, len(p.Metadata))
	for k, v := range p.Metadata {
		meta[k] = v
	}
	actx := withStoreOptions(ctx)
	err := workflow.ExecuteActivity(actx, activities.NameUpsertCompletion, store.MethodCompletion{
		SubjectID:            o.state.SubjectID,
		Method:               p.Method,
		CompletedAt:          p.CompletedAt,
		Count:                count,
		PointsAwarded:        points,
		ExpiresAt:            expiresAt,
		Metadata:             meta,
		SourceVerificationID: attemptID,
	}).Get(actx, nil)
	if err != nil {
		o.logger.Error("completion persistence failed", "method", p.Method, "error", err)
		return
	}

	o.state.Completions[p.Method] = &CompletionState{
		Method:      p.Method,
		Count:       count,
		Points:      points,
		CompletedAt: p.CompletedAt,
		ExpiresAt:   expiresAt,
		AttestorIDs: attestors,
	}

	o.aud.record(ctx, audit.Event{
		SubjectID: o.state.SubjectID,
		Kind:      audit.KindCompletionUpserted,
		Method:    string(p.Method),
		AttemptID: attemptID,
		Data:      map[string]interface{}{"count": count, "points": points},
	})
	o.aud.record(ctx, audit.Event{
		SubjectID: o.state.SubjectID,
		Kind:      audit.KindPointsAwarded,
		Method:    string(p.Method),
		AttemptID: attemptID,
		Data:      map[string]interface{}{"points": points},
	})
	o.recomputeLevel(ctx)
}

// handleAttestation accumulates distinct attestors for the reference and
// attestation methods; the completion upserts on the first attestor and
// re-upserts as the count grows, capped by the method's multiplier. Notary
// attestations additionally require the attestor to hold a notary credential,
// checked through the verifier authorization activity.
func (o *orchestrator) handleAttestation(ctx workflow.Context, sig CommunityAttestationSignal) {
	m := sig.Method
	if m == "" {
		m = scoring.MethodCommunityAttestation
	}
	switch m {
	case scoring.MethodCommunityAttestation, scoring.MethodPersonalReference,
		scoring.MethodNotaryVerification:
	default:
		return
	}
	if !m.ApplicableTo(o.state.SubjectKind) || sig.AttestorID == "" {
		return
	}
	if sig.AttestorID == o.state.SubjectID {
		// Self-attestation never counts.
		return
	}

	var attestors []string
	if c := o.state.Completions[m]; c != nil {
		attestors = c.AttestorIDs
	}
	for _, id := range attestors {
		if id == sig.AttestorID {
			return
		}
	}

	if m == scoring.MethodNotaryVerification {
		actx := withActivityOptions(ctx)
		var auth activities.AuthorizeVerifiersResult
		err := workflow.ExecuteActivity(actx, activities.NameAuthorizeVerifiers, activities.AuthorizeVerifiersInput{
			SubjectID:   o.state.SubjectID,
			SubjectKind: o.state.SubjectKind,
			Method:      m,
			VerifierIDs: []string{sig.AttestorID},
		}).Get(actx, &auth)
		if err != nil || !auth.AllAuthorized {
			reason := "not authorized for notary attestation"
			if err != nil {
				reason = err.Error()
			}
			o.aud.record(ctx, audit.Event{
				SubjectID: o.state.SubjectID,
				Kind:      audit.KindAttemptStateChanged,
				ActorID:   sig.AttestorID,
				Method:    string(m),
				Data:      map[string]interface{}{"error": "authorization", "detail": reason},
			})
			return
		}
	}

	attestors = append(attestors, sig.AttestorID)

	o.aud.record(ctx, audit.Event{
		SubjectID: o.state.SubjectID,
		Kind:      audit.KindConfirmationRecorded,
		ActorID:   sig.AttestorID,
		Method:    string(m),
		Data:      map[string]interface{}{"attestor_count": len(attestors)},
	})

	completedAt := workflow.Now(ctx).UTC()
	if c := o.state.Completions[m]; c != nil {
		completedAt = c.CompletedAt
	}
	o.applyCompletion(ctx, "", &CompletionProposal{
		Method:      m,
		CompletedAt: completedAt,
	}, len(attestors), attestors)
}

// handleHistoryMilestone awards passive history points directly, one count
// per distinct milestone, capped by the method's multiplier.
func (o *orchestrator) handleHistoryMilestone(ctx workflow.Context, sig HistoryMilestoneSignal) {
	var m scoring.Method
	switch sig.Kind {
	case "platform":
		m = scoring.MethodPlatformHistory
	case "transaction":
		m = scoring.MethodTransactionHistory
	default:
		return
	}
	if !m.ApplicableTo(o.state.SubjectKind) {
		return
	}

	key := sig.Kind + ":" + strconv.Itoa(sig.Value)
	if o.state.HistoryMilestone[key] {
		return
	}
	o.state.HistoryMilestone[key] = true

	count := 1
	completedAt := workflow.Now(ctx).UTC()
	if c := o.state.Completions[m]; c != nil {
		count = c.Count + 1
		completedAt = c.CompletedAt
	}
	o.applyCompletion(ctx, "", &CompletionProposal{
		Method:      m,
		CompletedAt: completedAt,
	}, count, nil)
}

// handleRevoke retracts a completed method and recomputes.
func (o *orchestrator) handleRevoke(ctx workflow.Context, sig RevokeMethodSignal) {
	c, ok := o.state.Completions[sig.Method]
	if !ok {
		return
	}

	actx := withStoreOptions(ctx)
	err := workflow.ExecuteActivity(actx, activities.NameRetractCompletion, activities.RetractCompletionInput{
		SubjectID: o.state.SubjectID,
		Method:    sig.Method,
	}).Get(actx, nil)
	if err != nil {
		o.logger.Error("completion retraction failed", "method", sig.Method, "error", err)
		return
	}
	delete(o.state.Completions, sig.Method)

	o.aud.record(ctx, audit.Event{
		SubjectID: o.state.SubjectID,
		Kind:      audit.KindRevoked,
		ActorID:   sig.ActorID,
		Method:    string(sig.Method),
		Data:      map[string]interface{}{"reason": sig.Reason, "points_removed": c.Points},
	})
	o.aud.record(ctx, audit.Event{
		SubjectID: o.state.SubjectID,
		Kind:      audit.KindCompletionRetracted,
		Method:    string(sig.Method),
	})
	o.recomputeLevel(ctx)
}

// expirySweep drops completions whose expiry has passed. Expiry is an
// implicit revocation: the points stop counting and at most one level
// change fires per sweep.
func (o *orchestrator) expirySweep(ctx workflow.Context) {
	now := workflow.Now(ctx).UTC()
	o.state.LastExpirySweep = now

	for _, m := range sortedMethods(o.state.Completions) {
		c := o.state.Completions[m]
		if c.ExpiresAt == nil || c.ExpiresAt.After(now) {
			continue
		}
		delete(o.state.Completions, m)
		o.aud.record(ctx, audit.Event{
			SubjectID: o.state.SubjectID,
			Kind:      audit.KindExpired,
			Method:    string(m),
			Data:      map[string]interface{}{"expired_at": *c.ExpiresAt, "points_removed": c.Points},
		})
	}
	o.recomputeLevel(ctx)
}

func (o *orchestrator) nextSweepIn(ctx workflow.Context) time.Duration {
	next := o.state.LastExpirySweep.Add(expirySweepInterval)
	d := next.Sub(workflow.Now(ctx).UTC())
	if d < time.Minute {
		d = time.Minute
	}
	return d
}

// recomputeLevel compares the current level against the last observed one
// and emits exactly one level_changed event per transition, up or down.
func (o *orchestrator) recomputeLevel(ctx workflow.Context) {
	score := o.scoreNow(ctx)
	newLevel := scoring.LevelForScore(score)
	if newLevel == o.level {
		return
	}
	old := o.level
	o.level = newLevel

	o.aud.record(ctx, audit.Event{
		SubjectID: o.state.SubjectID,
		Kind:      audit.KindLevelChanged,
		Data: map[string]interface{}{
			"old_level": old.String(),
			"new_level": newLevel.String(),
			"score":     score,
		},
	})

	actx := withActivityOptions(ctx)
	err := workflow.ExecuteActivity(actx, activities.NameNotifyLevelChange, activities.NotifyLevelChangeInput{
		SubjectID: o.state.SubjectID,
		OldLevel:  old.String(),
		NewLevel:  newLevel.String(),
		Score:     score,
	}).Get(actx, nil)
	if err != nil {
		o.logger.Error("level change notification failed", "error", err)
	}
}

func childWorkflowFor(m scoring.Method) string {
	switch m {
	case scoring.MethodInPersonTwoParty:
		return NameTwoParty
	case scoring.MethodEmail, scoring.MethodPhone:
		return NameCode
	case scoring.MethodGovernmentID, scoring.MethodBusinessLicense,
		scoring.MethodTaxID, scoring.MethodOrganization501c3:
		return NameDocumentReview
	}
	return ""
}

func sortedAttemptIDs(m map[string]*AttemptRef) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedMethods(m map[scoring.Method]*CompletionState) []scoring.Method {
	out := make([]scoring.Method, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
