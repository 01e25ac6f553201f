package main

import (
	"go.temporal.io/sdk/worker"

	"github.com/nabr/verification/internal/activities"
	"github.com/nabr/verification/internal/workflows"
)

// registerAll wires every workflow and activity onto the worker. Workflow
// and activity method names double as their registered names, so the
// workflow packages can reference them by constant without importing this
// binary.
func registerAll(w worker.Worker, acts *activities.Activities) {
	w.RegisterWorkflow(workflows.SubjectVerificationWorkflow)
	w.RegisterWorkflow(workflows.TwoPartyWorkflow)
	w.RegisterWorkflow(workflows.CodeWorkflow)
	w.RegisterWorkflow(workflows.DocumentReviewWorkflow)
	w.RegisterActivity(acts)
}
