package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nabr/verification/internal/attempt"
)

// UpsertAttempt persists an attempt record. Replays with the same attempt id
// overwrite the row, so state updates are retry-safe.
func (s *Store) UpsertAttempt(ctx context.Context, a *attempt.Attempt) error {
	data, err := json.Marshal(map[string]interface{}{
		"qr_tokens":       a.QRTokens,
		"document_handle": a.DocumentHandle,
	})
	if err != nil {
		return fmt.Errorf("marshal attempt data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO verification_attempts
			(attempt_id, subject_id, method, state, created_at, deadline, saga_step, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (attempt_id) DO UPDATE SET
			state = EXCLUDED.state,
			saga_step = EXCLUDED.saga_step,
			data = EXCLUDED.data`,
		a.ID, a.SubjectID, string(a.Method), string(a.State), a.CreatedAt, a.Deadline, a.SagaStep, data)
	if err != nil {
		return fmt.Errorf("upsert attempt %s: %w", a.ID, err)
	}
	return nil
}

// UpdateAttemptState moves a stored attempt to a new state.
func (s *Store) UpdateAttemptState(ctx context.Context, attemptID string, state attempt.State, sagaStep int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE verification_attempts SET state = $2, saga_step = $3
		WHERE attempt_id = $1`, attemptID, string(state), sagaStep)
	if err != nil {
		return fmt.Errorf("update attempt %s state: %w", attemptID, err)
	}
	return nil
}

// ExpireStaleAttempts marks non-terminal attempts past their deadline
// expired, returning how many were affected.
func (s *Store) ExpireStaleAttempts(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE verification_attempts SET state = $2
		WHERE deadline < $1
		  AND state NOT IN ('completed', 'rejected', 'expired', 'revoked')`,
		now, string(attempt.StateExpired))
	if err != nil {
		return 0, fmt.Errorf("expire stale attempts: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
