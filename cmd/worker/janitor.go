package main

import (
	"context"
	"log"
	"time"

	"github.com/nabr/verification/internal/store"
)

const janitorInterval = time.Hour

// runJanitor periodically expires attempt rows whose deadline passed while
// no worker was polling, and logs completions overdue for their
// orchestrator's expiry sweep. Orchestrators own the authoritative state;
// the janitor only keeps the store's rows from going stale between sweeps.
func runJanitor(ctx context.Context, st *store.Store) {
	logger := log.New(log.Writer(), "[JANITOR] ", log.LstdFlags)
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := time.Now().UTC()
		sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)

		if n, err := st.ExpireStaleAttempts(sweepCtx, now); err != nil {
			logger.Printf("expire stale attempts: %v", err)
		} else if n > 0 {
			logger.Printf("expired %d stale attempt(s)", n)
		}

		if overdue, err := st.ListExpiringCompletions(sweepCtx, now); err != nil {
			logger.Printf("list expiring completions: %v", err)
		} else if len(overdue) > 0 {
			logger.Printf("%d completion(s) past expiry awaiting orchestrator sweep", len(overdue))
		}

		cancel()
	}
}
