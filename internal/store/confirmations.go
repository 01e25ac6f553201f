package store

import (
	"context"
	"fmt"
	"time"
)

// Confirmation records one verifier's in-person confirmation of an attempt.
type Confirmation struct {
	AttemptID   string    `json:"attempt_id"`
	Slot        int       `json:"slot"`
	VerifierID  string    `json:"verifier_id"`
	ConfirmedAt time.Time `json:"confirmed_at"`
	Location    string    `json:"location,omitempty"`
	DeviceFP    string    `json:"device_fp,omitempty"`
}

// RecordConfirmations persists both confirmations of a two-party attempt in
// one statement batch. Idempotent on (attempt_id, slot, verifier_id): a retry
// that hits an existing identical row is a no-op, while a conflicting
// verifier on a filled slot is an error.
func (s *Store) RecordConfirmations(ctx context.Context, confirmations []Confirmation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin confirmations tx: %w", err)
	}
	defer tx.Rollback()

	for _, c := range confirmations {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO verifier_confirmations
				(attempt_id, slot, verifier_id, confirmed_at, location, device_fp)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (attempt_id, slot) DO UPDATE SET revoked = FALSE
			WHERE verifier_confirmations.verifier_id = EXCLUDED.verifier_id`,
			c.AttemptID, c.Slot, c.VerifierID, c.ConfirmedAt,
			nullIfEmpty(c.Location), nullIfEmpty(c.DeviceFP))
		if err != nil {
			return fmt.Errorf("record confirmation %s/%d: %w", c.AttemptID, c.Slot, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("confirmation slot %d of attempt %s already held by another verifier", c.Slot, c.AttemptID)
		}
	}
	return tx.Commit()
}

// RevokeConfirmations marks every confirmation of an attempt revoked. This is
// the saga inverse of RecordConfirmations; running it on an attempt with no
// confirmations, or twice, is a no-op.
func (s *Store) RevokeConfirmations(ctx context.Context, attemptID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE verifier_confirmations SET revoked = TRUE
		WHERE attempt_id = $1 AND revoked = FALSE`, attemptID)
	if err != nil {
		return 0, fmt.Errorf("revoke confirmations for attempt %s: %w", attemptID, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
