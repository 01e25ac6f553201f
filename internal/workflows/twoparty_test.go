package workflows

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/nabr/verification/internal/attempt"
	"github.com/nabr/verification/internal/audit"
	"github.com/nabr/verification/internal/scoring"
)

func twoPartyInput() ChildInput {
	return ChildInput{
		AttemptID:   "att-1",
		SubjectID:   "subj-1",
		SubjectKind: scoring.KindIndividual,
		Method:      scoring.MethodInPersonTwoParty,
		Deadline:    72 * time.Hour,
	}
}

func TestTwoPartyHappyPath(t *testing.T) {
	// Two distinct authorized verifiers each consume one slot; the attempt
	// completes and proposes a completion carrying both verifier ids.
	suite := testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	stub := newStubActivities()
	stub.register(env)
	env.RegisterWorkflow(TwoPartyWorkflow)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalVerifierConfirmation, VerifierConfirmationSignal{
			Token: "tok-1", VerifierID: "v1", Location: "library",
		})
	}, time.Hour)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalVerifierConfirmation, VerifierConfirmationSignal{
			Token: "tok-2", VerifierID: "v2",
		})
	}, 2*time.Hour)

	env.ExecuteWorkflow(TwoPartyWorkflow, twoPartyInput())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var outcome MethodOutcome
	require.NoError(t, env.GetWorkflowResult(&outcome))
	assert.Equal(t, OutcomeCompleted, outcome.Kind)
	require.NotNil(t, outcome.Proposal)
	assert.Equal(t, []string{"v1", "v2"}, outcome.Proposal.VerifierIDs)

	assert.Equal(t, 2, stub.countKind(audit.KindQRIssued))
	assert.Equal(t, 2, stub.countKind(audit.KindQRConsumed))
	assert.Equal(t, 2, stub.countKind(audit.KindConfirmationRecorded))
	assert.Zero(t, stub.countKind(audit.KindCompensationRan))
	require.Len(t, stub.confirmations, 1)
	assert.Len(t, stub.confirmations[0], 2)
	assert.Equal(t, [][]string{{"v1", "v2"}}, stub.credited)
	assert.Equal(t, string(attempt.StateCompleted), stub.lastAttemptState("att-1"))
}

func TestTwoPartyTokenCollision(t *testing.T) {
	// A third actor replays an already consumed token: the signal is
	// rejected and audited, and the attempt still completes once the real
	// second verifier arrives.
	suite := testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	stub := newStubActivities()
	stub.register(env)
	env.RegisterWorkflow(TwoPartyWorkflow)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalVerifierConfirmation, VerifierConfirmationSignal{
			Token: "tok-1", VerifierID: "v1",
		})
	}, time.Hour)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalVerifierConfirmation, VerifierConfirmationSignal{
			Token: "tok-1", VerifierID: "v3",
		})
	}, 2*time.Hour)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalVerifierConfirmation, VerifierConfirmationSignal{
			Token: "tok-2", VerifierID: "v2",
		})
	}, 3*time.Hour)

	env.ExecuteWorkflow(TwoPartyWorkflow, twoPartyInput())
	require.True(t, env.IsWorkflowCompleted())

	var outcome MethodOutcome
	require.NoError(t, env.GetWorkflowResult(&outcome))
	assert.Equal(t, OutcomeCompleted, outcome.Kind)
	assert.Equal(t, []string{"v1", "v2"}, outcome.Proposal.VerifierIDs)

	// Three consumption attempts audited: ok, already_consumed_by_other, ok.
	assert.Equal(t, 3, stub.countKind(audit.KindQRConsumed))
}

func TestTwoPartySameVerifierBothSlots(t *testing.T) {
	// The same principal cannot fill both slots; the second token stays
	// consumable for another verifier.
	suite := testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	stub := newStubActivities()
	stub.register(env)
	env.RegisterWorkflow(TwoPartyWorkflow)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalVerifierConfirmation, VerifierConfirmationSignal{
			Token: "tok-1", VerifierID: "v1",
		})
	}, time.Hour)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalVerifierConfirmation, VerifierConfirmationSignal{
			Token: "tok-2", VerifierID: "v1",
		})
	}, 2*time.Hour)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalVerifierConfirmation, VerifierConfirmationSignal{
			Token: "tok-2", VerifierID: "v2",
		})
	}, 3*time.Hour)

	env.ExecuteWorkflow(TwoPartyWorkflow, twoPartyInput())
	require.True(t, env.IsWorkflowCompleted())

	var outcome MethodOutcome
	require.NoError(t, env.GetWorkflowResult(&outcome))
	assert.Equal(t, OutcomeCompleted, outcome.Kind)
	assert.Equal(t, []string{"v1", "v2"}, outcome.Proposal.VerifierIDs)
}

func TestTwoPartyDuplicateConfirmationRedelivered(t *testing.T) {
	// The same (token, verifier) confirmation arrives twice. The second
	// delivery is recognized as already applied and leaves no trace: no
	// extra audit event and no extra consumption attempt.
	suite := testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	stub := newStubActivities()
	stub.register(env)
	env.RegisterWorkflow(TwoPartyWorkflow)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalVerifierConfirmation, VerifierConfirmationSignal{
			Token: "tok-1", VerifierID: "v1",
		})
	}, time.Hour)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalVerifierConfirmation, VerifierConfirmationSignal{
			Token: "tok-1", VerifierID: "v1",
		})
	}, 2*time.Hour)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalVerifierConfirmation, VerifierConfirmationSignal{
			Token: "tok-2", VerifierID: "v2",
		})
	}, 3*time.Hour)

	env.ExecuteWorkflow(TwoPartyWorkflow, twoPartyInput())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var outcome MethodOutcome
	require.NoError(t, env.GetWorkflowResult(&outcome))
	assert.Equal(t, OutcomeCompleted, outcome.Kind)
	assert.Equal(t, []string{"v1", "v2"}, outcome.Proposal.VerifierIDs)

	// One consumption audit per slot; the redelivery adds none.
	assert.Equal(t, 2, stub.countKind(audit.KindQRConsumed))
	assert.Equal(t, 2, stub.countKind(audit.KindConfirmationRecorded))
	require.Len(t, stub.confirmations, 1)
	assert.Len(t, stub.confirmations[0], 2)
}

func TestTwoPartyCompensatesOnUnauthorizedVerifier(t *testing.T) {
	// Both slots fill, but the second verifier fails authorization. The
	// saga unwinds: confirmations revoked, tokens invalidated, attempt
	// rejected, nothing committed.
	suite := testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	stub := newStubActivities()
	stub.unauthorized["v2"] = true
	stub.register(env)
	env.RegisterWorkflow(TwoPartyWorkflow)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalVerifierConfirmation, VerifierConfirmationSignal{
			Token: "tok-1", VerifierID: "v1",
		})
	}, time.Hour)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalVerifierConfirmation, VerifierConfirmationSignal{
			Token: "tok-2", VerifierID: "v2",
		})
	}, 2*time.Hour)

	env.ExecuteWorkflow(TwoPartyWorkflow, twoPartyInput())
	require.True(t, env.IsWorkflowCompleted())

	var outcome MethodOutcome
	require.NoError(t, env.GetWorkflowResult(&outcome))
	assert.Equal(t, OutcomeVerifierUnauthorized, outcome.Kind)
	assert.Nil(t, outcome.Proposal)

	assert.Equal(t, []string{"att-1"}, stub.revoked)
	assert.Equal(t, []string{"att-1"}, stub.invalidated)
	assert.Equal(t, 1, stub.countKind(audit.KindConfirmationRevoked))
	assert.Equal(t, 1, stub.countKind(audit.KindQRInvalidated))
	assert.Equal(t, 1, stub.countKind(audit.KindCompensationRan))
	assert.Empty(t, stub.confirmations)
	assert.Empty(t, stub.credited)
	assert.Equal(t, string(attempt.StateRejected), stub.lastAttemptState("att-1"))
}

func TestTwoPartyTimesOutAndInvalidatesTokens(t *testing.T) {
	// Only one verifier shows up. At the 72 hour deadline the attempt
	// expires, and the issued tokens are invalidated so they cannot be
	// consumed later.
	suite := testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	stub := newStubActivities()
	stub.register(env)
	env.RegisterWorkflow(TwoPartyWorkflow)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalVerifierConfirmation, VerifierConfirmationSignal{
			Token: "tok-1", VerifierID: "v1",
		})
	}, time.Hour)

	env.ExecuteWorkflow(TwoPartyWorkflow, twoPartyInput())
	require.True(t, env.IsWorkflowCompleted())

	var outcome MethodOutcome
	require.NoError(t, env.GetWorkflowResult(&outcome))
	assert.Equal(t, OutcomeTimeout, outcome.Kind)

	assert.Equal(t, []string{"att-1"}, stub.invalidated)
	assert.Equal(t, []string{"att-1"}, stub.revoked)
	assert.Equal(t, string(attempt.StateExpired), stub.lastAttemptState("att-1"))
	require.Len(t, stub.failures, 1)
	assert.Equal(t, "attempt_expired", stub.failures[0].Kind)
}
