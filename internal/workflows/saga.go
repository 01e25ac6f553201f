package workflows

import (
	"go.temporal.io/sdk/workflow"
)

// compensationEntry is a single registered inverse.
type compensationEntry struct {
	inverse string // label for audit and metrics
	undo    func(workflow.Context) error
}

// compensations is a LIFO stack of inverse activities for one attempt.
// Each durable side effect pushes its inverse right after it succeeds; on
// failure the stack unwinds in reverse order, on success it is cleared.
// Inverses are idempotent activities, so re-running a partially unwound
// stack after a crash converges to the same state.
type compensations struct {
	entries []compensationEntry
}

// Push registers an inverse for the most recent side effect.
func (c *compensations) Push(inverse string, undo func(workflow.Context) error) {
	c.entries = append(c.entries, compensationEntry{inverse: inverse, undo: undo})
}

// Clear commits the side effects: the attempt succeeded, nothing to undo.
func (c *compensations) Clear() {
	c.entries = nil
}

// Depth reports how many inverses are pending.
func (c *compensations) Depth() int {
	return len(c.entries)
}

// Execute unwinds the stack in LIFO order on a disconnected context, so
// compensation still runs when the attempt is being cancelled. Returns the
// labels of the inverses that ran, for the compensation audit event.
func (c *compensations) Execute(ctx workflow.Context) []string {
	if len(c.entries) == 0 {
		return nil
	}
	logger := workflow.GetLogger(ctx)
	dctx, _ := workflow.NewDisconnectedContext(ctx)

	ran := make([]string, 0, len(c.entries))
	for i := len(c.entries) - 1; i >= 0; i-- {
		entry := c.entries[i]
		if err := entry.undo(dctx); err != nil {
			// Inverse retries are exhausted. Log and keep unwinding;
			// every inverse is independent and idempotent.
			logger.Error("compensation failed", "inverse", entry.inverse, "error", err)
			continue
		}
		ran = append(ran, entry.inverse)
	}
	c.entries = nil
	return ran
}
