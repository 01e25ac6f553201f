package workflows

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/nabr/verification/internal/attempt"
	"github.com/nabr/verification/internal/scoring"
)

func reviewInput(method scoring.Method) ChildInput {
	return ChildInput{
		AttemptID:   "att-doc",
		SubjectID:   "subj-1",
		SubjectKind: scoring.KindIndividual,
		Method:      method,
		Params: map[string]string{
			"document_handle": "doc://uploads/abc123",
			"document_type":   "passport",
			"size_bytes":      "204800",
		},
		Deadline: 7 * 24 * time.Hour,
	}
}

func TestReviewApproval(t *testing.T) {
	suite := testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	stub := newStubActivities()
	stub.register(env)
	env.RegisterWorkflow(DocumentReviewWorkflow)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalReviewerDecision, ReviewerDecisionSignal{
			AttemptID:  "att-doc",
			ReviewerID: "reviewer-7",
			Decision:   "approve",
		})
	}, 48*time.Hour)

	env.ExecuteWorkflow(DocumentReviewWorkflow, reviewInput(scoring.MethodGovernmentID))
	require.True(t, env.IsWorkflowCompleted())

	var outcome MethodOutcome
	require.NoError(t, env.GetWorkflowResult(&outcome))
	assert.Equal(t, OutcomeCompleted, outcome.Kind)
	require.NotNil(t, outcome.Proposal)
	assert.Equal(t, "reviewer-7", outcome.Proposal.Metadata["reviewer_id"])
	assert.Equal(t, string(attempt.StateCompleted), stub.lastAttemptState("att-doc"))
}

func TestReviewRejection(t *testing.T) {
	suite := testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	stub := newStubActivities()
	stub.register(env)
	env.RegisterWorkflow(DocumentReviewWorkflow)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalReviewerDecision, ReviewerDecisionSignal{
			AttemptID:  "att-doc",
			ReviewerID: "reviewer-7",
			Decision:   "reject",
			Notes:      "photo does not match",
		})
	}, time.Hour)

	env.ExecuteWorkflow(DocumentReviewWorkflow, reviewInput(scoring.MethodBusinessLicense))
	require.True(t, env.IsWorkflowCompleted())

	var outcome MethodOutcome
	require.NoError(t, env.GetWorkflowResult(&outcome))
	assert.Equal(t, OutcomeRejected, outcome.Kind)
	require.Len(t, stub.failures, 1)
	assert.Equal(t, "reviewer_rejected", stub.failures[0].Kind)
	assert.Equal(t, string(attempt.StateRejected), stub.lastAttemptState("att-doc"))
}

func TestReviewTimesOutWithoutDecision(t *testing.T) {
	suite := testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	stub := newStubActivities()
	stub.register(env)
	env.RegisterWorkflow(DocumentReviewWorkflow)

	env.ExecuteWorkflow(DocumentReviewWorkflow, reviewInput(scoring.MethodGovernmentID))
	require.True(t, env.IsWorkflowCompleted())

	var outcome MethodOutcome
	require.NoError(t, env.GetWorkflowResult(&outcome))
	assert.Equal(t, OutcomeTimeout, outcome.Kind)
	assert.Equal(t, string(attempt.StateExpired), stub.lastAttemptState("att-doc"))
}

func TestReviewRejectsInvalidUpload(t *testing.T) {
	suite := testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	stub := newStubActivities()
	stub.register(env)
	env.RegisterWorkflow(DocumentReviewWorkflow)

	in := reviewInput(scoring.MethodGovernmentID)
	in.Params["document_handle"] = ""
	env.ExecuteWorkflow(DocumentReviewWorkflow, in)
	require.True(t, env.IsWorkflowCompleted())

	var outcome MethodOutcome
	require.NoError(t, env.GetWorkflowResult(&outcome))
	assert.Equal(t, OutcomeInvalidInput, outcome.Kind)
	assert.Equal(t, "missing document handle", outcome.Reason)
	require.Len(t, stub.failures, 1)
}
