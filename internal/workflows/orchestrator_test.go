package workflows

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/nabr/verification/internal/audit"
	"github.com/nabr/verification/internal/scoring"
)

func newOrchestratorEnv(t *testing.T) (*testsuite.TestWorkflowEnvironment, *stubActivities) {
	t.Helper()
	suite := testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	stub := newStubActivities()
	stub.register(env)
	env.RegisterWorkflow(SubjectVerificationWorkflow)
	env.RegisterWorkflow(TwoPartyWorkflow)
	env.RegisterWorkflow(CodeWorkflow)
	env.RegisterWorkflow(DocumentReviewWorkflow)
	return env, stub
}

func individualInput() OrchestratorInput {
	return OrchestratorInput{SubjectID: "subj-1", SubjectKind: scoring.KindIndividual}
}

func queryInt(t *testing.T, env *testsuite.TestWorkflowEnvironment, name string) int {
	t.Helper()
	v, err := env.QueryWorkflow(name)
	require.NoError(t, err)
	var out int
	require.NoError(t, v.Get(&out))
	return out
}

func queryString(t *testing.T, env *testsuite.TestWorkflowEnvironment, name string) string {
	t.Helper()
	v, err := env.QueryWorkflow(name)
	require.NoError(t, err)
	var out string
	require.NoError(t, v.Get(&out))
	return out
}

func TestOrchestratorReachesMinimalViaTwoParty(t *testing.T) {
	// Scenario: an undocumented individual reaches Minimal through two
	// in-person verifiers, no email, phone or documents involved.
	env, stub := newOrchestratorEnv(t)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalStartMethod, StartMethodSignal{Method: scoring.MethodInPersonTwoParty})
	}, time.Minute)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalVerifierConfirmation, VerifierConfirmationSignal{Token: "tok-1", VerifierID: "v1"})
	}, 2*time.Hour)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalVerifierConfirmation, VerifierConfirmationSignal{Token: "tok-2", VerifierID: "v2"})
	}, 3*time.Hour)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalTerminate, TerminateSignal{Reason: "test over"})
	}, 24*time.Hour)

	env.ExecuteWorkflow(SubjectVerificationWorkflow, individualInput())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	assert.Equal(t, 150, queryInt(t, env, QueryTrustScore))
	assert.Equal(t, "minimal", queryString(t, env, QueryLevel))

	require.Len(t, stub.completions, 1)
	assert.Equal(t, scoring.MethodInPersonTwoParty, stub.completions[0].Method)
	assert.Equal(t, 150, stub.completions[0].PointsAwarded)

	require.Len(t, stub.levelChanges, 1)
	assert.Equal(t, "unverified", stub.levelChanges[0].OldLevel)
	assert.Equal(t, "minimal", stub.levelChanges[0].NewLevel)

	assert.Equal(t, 1, stub.countKind(audit.KindAttemptStarted))
	assert.Equal(t, 2, stub.countKind(audit.KindQRIssued))
	assert.Equal(t, 2, stub.countKind(audit.KindQRConsumed))
	assert.Equal(t, 2, stub.countKind(audit.KindConfirmationRecorded))
	assert.Equal(t, 1, stub.countKind(audit.KindCompletionUpserted))
	assert.Equal(t, 1, stub.countKind(audit.KindPointsAwarded))
	assert.Equal(t, 1, stub.countKind(audit.KindLevelChanged))
	assert.Equal(t, 1, stub.countKind(audit.KindOrchestratorTerminated))
}

func TestOrchestratorAttestationsReachMinimal(t *testing.T) {
	// Three distinct personal references at 50 points each clear the
	// Minimal threshold. A duplicate attestor is ignored; a fourth distinct
	// one is capped at zero additional points but still audited.
	env, stub := newOrchestratorEnv(t)

	attest := func(attestor string, delay time.Duration) {
		env.RegisterDelayedCallback(func() {
			env.SignalWorkflow(SignalCommunityAttestation, CommunityAttestationSignal{
				Method:     scoring.MethodPersonalReference,
				AttestorID: attestor,
			})
		}, delay)
	}
	attest("a1", 1*time.Minute)
	attest("a2", 2*time.Minute)
	attest("a3", 3*time.Minute)
	attest("a1", 4*time.Minute) // duplicate
	attest("a4", 5*time.Minute) // over the cap
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalTerminate, TerminateSignal{Reason: "done"})
	}, time.Hour)

	env.ExecuteWorkflow(SubjectVerificationWorkflow, individualInput())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	assert.Equal(t, 150, queryInt(t, env, QueryTrustScore))
	assert.Equal(t, "minimal", queryString(t, env, QueryLevel))

	// Four distinct attestors audited, the duplicate is not.
	assert.Equal(t, 4, stub.countKind(audit.KindConfirmationRecorded))

	// The last upsert carries the capped point total.
	require.NotEmpty(t, stub.completions)
	last := stub.completions[len(stub.completions)-1]
	assert.Equal(t, 4, last.Count)
	assert.Equal(t, 150, last.PointsAwarded)

	require.Len(t, stub.levelChanges, 1)
}

func TestOrchestratorRevokeDowngrades(t *testing.T) {
	env, stub := newOrchestratorEnv(t)

	attest := func(attestor string, delay time.Duration) {
		env.RegisterDelayedCallback(func() {
			env.SignalWorkflow(SignalCommunityAttestation, CommunityAttestationSignal{
				Method:     scoring.MethodPersonalReference,
				AttestorID: attestor,
			})
		}, delay)
	}
	attest("a1", 1*time.Minute)
	attest("a2", 2*time.Minute)
	attest("a3", 3*time.Minute)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalRevokeMethod, RevokeMethodSignal{
			Method: scoring.MethodPersonalReference,
			Reason: "references recanted",
		})
	}, time.Hour)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalTerminate, TerminateSignal{Reason: "done"})
	}, 2*time.Hour)

	env.ExecuteWorkflow(SubjectVerificationWorkflow, individualInput())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	assert.Equal(t, 0, queryInt(t, env, QueryTrustScore))
	assert.Equal(t, "unverified", queryString(t, env, QueryLevel))

	require.Len(t, stub.retractions, 1)
	assert.Equal(t, scoring.MethodPersonalReference, stub.retractions[0].Method)
	assert.Equal(t, 1, stub.countKind(audit.KindRevoked))
	assert.Equal(t, 1, stub.countKind(audit.KindCompletionRetracted))

	// One upgrade and one downgrade, each audited exactly once.
	require.Len(t, stub.levelChanges, 2)
	assert.Equal(t, "minimal", stub.levelChanges[0].NewLevel)
	assert.Equal(t, "unverified", stub.levelChanges[1].NewLevel)
}

func TestOrchestratorExpirySweepDowngrades(t *testing.T) {
	// Personal references decay after 730 days. A later sweep drops the
	// completion, the score falls to zero, and exactly one downgrade fires.
	env, stub := newOrchestratorEnv(t)

	attest := func(attestor string, delay time.Duration) {
		env.RegisterDelayedCallback(func() {
			env.SignalWorkflow(SignalCommunityAttestation, CommunityAttestationSignal{
				Method:     scoring.MethodPersonalReference,
				AttestorID: attestor,
			})
		}, delay)
	}
	attest("a1", 1*time.Minute)
	attest("a2", 2*time.Minute)
	attest("a3", 3*time.Minute)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalTerminate, TerminateSignal{Reason: "done"})
	}, 800*24*time.Hour)

	env.ExecuteWorkflow(SubjectVerificationWorkflow, individualInput())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	assert.Equal(t, 0, queryInt(t, env, QueryTrustScore))
	assert.Equal(t, "unverified", queryString(t, env, QueryLevel))
	assert.Equal(t, 1, stub.countKind(audit.KindExpired))
	require.Len(t, stub.levelChanges, 2)
	assert.Equal(t, "unverified", stub.levelChanges[1].NewLevel)
}

func TestOrchestratorHistoryMilestones(t *testing.T) {
	env, _ := newOrchestratorEnv(t)

	milestone := func(kind string, value int, delay time.Duration) {
		env.RegisterDelayedCallback(func() {
			env.SignalWorkflow(SignalHistoryMilestone, HistoryMilestoneSignal{Kind: kind, Value: value})
		}, delay)
	}
	milestone("platform", 10, 1*time.Minute)
	milestone("platform", 50, 2*time.Minute)
	milestone("platform", 10, 3*time.Minute) // duplicate milestone
	milestone("transaction", 5, 4*time.Minute)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalTerminate, TerminateSignal{Reason: "done"})
	}, time.Hour)

	env.ExecuteWorkflow(SubjectVerificationWorkflow, individualInput())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	// Two platform milestones at 20 each plus one transaction at 15.
	assert.Equal(t, 55, queryInt(t, env, QueryTrustScore))
	assert.Equal(t, "unverified", queryString(t, env, QueryLevel))
}

func TestOrchestratorIgnoresInapplicableMethod(t *testing.T) {
	env, stub := newOrchestratorEnv(t)

	// An individual cannot start a business license review.
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalStartMethod, StartMethodSignal{Method: scoring.MethodBusinessLicense})
	}, time.Minute)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalTerminate, TerminateSignal{Reason: "done"})
	}, time.Hour)

	env.ExecuteWorkflow(SubjectVerificationWorkflow, individualInput())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	assert.Zero(t, stub.countKind(audit.KindAttemptStarted))
}

func TestOrchestratorDuplicateStartIsNoop(t *testing.T) {
	env, stub := newOrchestratorEnv(t)

	start := func(delay time.Duration) {
		env.RegisterDelayedCallback(func() {
			env.SignalWorkflow(SignalStartMethod, StartMethodSignal{
				Method: scoring.MethodEmail,
				Params: map[string]string{"destination": "user@example.org"},
			})
		}, delay)
	}
	start(1 * time.Minute)
	start(2 * time.Minute)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalTerminate, TerminateSignal{Reason: "done"})
	}, time.Hour)

	env.ExecuteWorkflow(SubjectVerificationWorkflow, individualInput())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	assert.Equal(t, 1, stub.countKind(audit.KindAttemptStarted))
}

func TestOrchestratorNotaryAttestationAwardsPoints(t *testing.T) {
	// A notarized attestation is signal-driven like a personal reference,
	// but the attestor must pass the verifier authorization rules first.
	env, stub := newOrchestratorEnv(t)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalCommunityAttestation, CommunityAttestationSignal{
			Method:     scoring.MethodNotaryVerification,
			AttestorID: "notary-1",
		})
	}, time.Minute)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalTerminate, TerminateSignal{Reason: "done"})
	}, time.Hour)

	env.ExecuteWorkflow(SubjectVerificationWorkflow, individualInput())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	assert.Equal(t, 100, queryInt(t, env, QueryTrustScore))
	assert.Equal(t, "minimal", queryString(t, env, QueryLevel))

	require.Len(t, stub.completions, 1)
	assert.Equal(t, scoring.MethodNotaryVerification, stub.completions[0].Method)
	assert.Equal(t, 100, stub.completions[0].PointsAwarded)
	assert.Equal(t, 1, stub.countKind(audit.KindConfirmationRecorded))

	// Signal-driven only: no attempt and no child workflow behind it.
	assert.Zero(t, stub.countKind(audit.KindAttemptStarted))
}

func TestOrchestratorNotaryAttestationRejectsUnauthorized(t *testing.T) {
	// An attestor without a qualifying credential is refused: nothing is
	// recorded, no points move, and the rejection itself is audited.
	env, stub := newOrchestratorEnv(t)
	stub.unauthorized["pretender"] = true

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalCommunityAttestation, CommunityAttestationSignal{
			Method:     scoring.MethodNotaryVerification,
			AttestorID: "pretender",
		})
	}, time.Minute)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalTerminate, TerminateSignal{Reason: "done"})
	}, time.Hour)

	env.ExecuteWorkflow(SubjectVerificationWorkflow, individualInput())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	assert.Equal(t, 0, queryInt(t, env, QueryTrustScore))
	assert.Equal(t, "unverified", queryString(t, env, QueryLevel))
	assert.Empty(t, stub.completions)
	assert.Zero(t, stub.countKind(audit.KindConfirmationRecorded))

	var rejections []audit.Event
	for _, e := range stub.events {
		if e.Kind == audit.KindAttemptStateChanged {
			rejections = append(rejections, e)
		}
	}
	require.Len(t, rejections, 1)
	assert.Equal(t, "pretender", rejections[0].ActorID)
	assert.Equal(t, "authorization", rejections[0].Data["error"])
}

func TestOrchestratorContinuesAsNewAfterIterationCap(t *testing.T) {
	// Enough signal deliveries push the event loop past its iteration cap;
	// with no attempts in flight the run hands off through continue-as-new
	// instead of accumulating unbounded history.
	env, _ := newOrchestratorEnv(t)

	// Chain the deliveries one callback at a time: registering all of them up
	// front fills the test environment's 1000-slot callback buffer before the
	// workflow starts, deadlocking the harness.
	var deliver func(i int)
	deliver = func(i int) {
		env.SignalWorkflow(SignalHistoryMilestone, HistoryMilestoneSignal{Kind: "platform", Value: 10})
		if i+1 < continueAsNewAfter {
			env.RegisterDelayedCallback(func() { deliver(i + 1) }, time.Second)
		}
	}
	env.RegisterDelayedCallback(func() { deliver(0) }, time.Second)

	env.ExecuteWorkflow(SubjectVerificationWorkflow, individualInput())
	require.True(t, env.IsWorkflowCompleted())

	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.True(t, workflow.IsContinueAsNewError(err))
}

func TestOrchestratorHydratesFromSnapshot(t *testing.T) {
	// The continue-as-new contract: an instance started from a snapshot
	// answers queries exactly as the instance that produced it would.
	env, _ := newOrchestratorEnv(t)

	completedAt := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	in := individualInput()
	in.Snapshot = &TrustState{
		SubjectID:   "subj-1",
		SubjectKind: scoring.KindIndividual,
		Completions: map[scoring.Method]*CompletionState{
			scoring.MethodInPersonTwoParty: {
				Method:      scoring.MethodInPersonTwoParty,
				Count:       1,
				Points:      150,
				CompletedAt: completedAt,
			},
			scoring.MethodGovernmentID: {
				Method:      scoring.MethodGovernmentID,
				Count:       1,
				Points:      100,
				CompletedAt: completedAt,
			},
		},
		LastExpirySweep: completedAt,
	}

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalTerminate, TerminateSignal{Reason: "done"})
	}, time.Hour)

	env.ExecuteWorkflow(SubjectVerificationWorkflow, in)
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	assert.Equal(t, 250, queryInt(t, env, QueryTrustScore))
	assert.Equal(t, "standard", queryString(t, env, QueryLevel))

	v, err := env.QueryWorkflow(QueryStatus)
	require.NoError(t, err)
	var snap StatusSnapshot
	require.NoError(t, v.Get(&snap))
	assert.Equal(t, 1, snap.Generation)
	assert.Len(t, snap.Completions, 2)
	assert.Empty(t, snap.Attempts)
}
