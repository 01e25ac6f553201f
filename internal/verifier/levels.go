package verifier

import (
	"context"
	"time"

	"github.com/nabr/verification/internal/scoring"
	"github.com/nabr/verification/internal/store"
)

// StoreLevels derives a principal's own trust level from their active
// completions in the verification store. Verifiers are always people, so the
// individual method set applies.
type StoreLevels struct {
	Store *store.Store
}

// LevelOf recomputes the principal's level from scratch; the scoring model is
// pure so this is always consistent with their orchestrator's view.
func (s StoreLevels) LevelOf(ctx context.Context, principalID string) (scoring.Level, error) {
	completions, err := s.Store.ListCompletions(ctx, principalID)
	if err != nil {
		return scoring.LevelUnverified, err
	}

	now := time.Now()
	counts := make(map[scoring.Method]int)
	for _, c := range completions {
		if c.Active(now) {
			counts[c.Method] = c.Count
		}
	}
	return scoring.LevelForScore(scoring.TrustScore(counts, scoring.KindIndividual)), nil
}
