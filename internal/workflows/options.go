package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/nabr/verification/internal/activities"
	"github.com/nabr/verification/internal/audit"
)

// withActivityOptions applies the default activity policy: short timeouts
// and three attempts with bounded backoff.
func withActivityOptions(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	})
}

// withStoreOptions is the policy for store writes, which get two extra
// attempts before an attempt is failed over to compensation.
func withStoreOptions(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    5,
		},
	})
}

// auditor hands out deterministic audit event IDs. The ID is derived from
// the run ID plus a sequence number kept in workflow state, so an activity
// retry writes the same row and the store's insert dedupes it.
type auditor struct {
	instanceID string
	runID      string
	seq        *int
}

func newAuditor(ctx workflow.Context, seq *int) *auditor {
	info := workflow.GetInfo(ctx)
	return &auditor{
		instanceID: info.WorkflowExecution.ID,
		runID:      info.WorkflowExecution.RunID,
		seq:        seq,
	}
}

// record emits one audit event through the store activity. Audit failures
// are logged and swallowed: the trail is best effort relative to the
// verification itself.
func (a *auditor) record(ctx workflow.Context, e audit.Event) {
	*a.seq++
	e.EventID = fmt.Sprintf("%s-%d", a.runID, *a.seq)
	e.InstanceID = a.instanceID
	e.OccurredAt = workflow.Now(ctx).UTC()

	actx := withStoreOptions(ctx)
	if err := workflow.ExecuteActivity(actx, activities.NameRecordAuditEvent, e).Get(actx, nil); err != nil {
		workflow.GetLogger(ctx).Error("audit write failed", "kind", e.Kind, "error", err)
	}
}
