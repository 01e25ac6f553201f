package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ConsumeOutcome is the precise result of a QR token consumption attempt.
type ConsumeOutcome string

const (
	ConsumeOK                      ConsumeOutcome = "ok"
	ConsumeAlreadyConsumedBySame   ConsumeOutcome = "already_consumed_by_same"
	ConsumeAlreadyConsumedByOther  ConsumeOutcome = "already_consumed_by_other"
	ConsumeInvalid                 ConsumeOutcome = "invalid"
	ConsumeExpired                 ConsumeOutcome = "expired"
)

// QRToken is a single-use secret bound to one verifier slot of one attempt.
type QRToken struct {
	Token       string     `json:"token"`
	AttemptID   string     `json:"attempt_id"`
	Slot        int        `json:"slot"`
	IssuedAt    time.Time  `json:"issued_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	ConsumedBy  string     `json:"consumed_by,omitempty"`
	ConsumedAt  *time.Time `json:"consumed_at,omitempty"`
	Invalidated bool       `json:"invalidated"`
}

// InsertQRTokens stores freshly issued tokens, idempotent on
// (attempt_id, slot): a retry that regenerated token material keeps the first
// insert, and the caller should read back with QRTokensForAttempt.
func (s *Store) InsertQRTokens(ctx context.Context, tokens []QRToken) error {
	for _, t := range tokens {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO qr_tokens (token, attempt_id, slot, issued_at, expires_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (attempt_id, slot) DO NOTHING`,
			t.Token, t.AttemptID, t.Slot, t.IssuedAt, t.ExpiresAt)
		if err != nil {
			return fmt.Errorf("insert qr token for attempt %s slot %d: %w", t.AttemptID, t.Slot, err)
		}
	}
	return nil
}

// QRTokensForAttempt returns the stored tokens of an attempt ordered by slot.
func (s *Store) QRTokensForAttempt(ctx context.Context, attemptID string) ([]QRToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token, attempt_id, slot, issued_at, expires_at, consumed_by, consumed_at, invalidated
		FROM qr_tokens WHERE attempt_id = $1 ORDER BY slot`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("qr tokens for attempt %s: %w", attemptID, err)
	}
	defer rows.Close()

	var out []QRToken
	for rows.Next() {
		var (
			t          QRToken
			consumedBy sql.NullString
		)
		if err := rows.Scan(&t.Token, &t.AttemptID, &t.Slot, &t.IssuedAt,
			&t.ExpiresAt, &consumedBy, &t.ConsumedAt, &t.Invalidated); err != nil {
			return nil, fmt.Errorf("scan qr token: %w", err)
		}
		t.ConsumedBy = consumedBy.String
		out = append(out, t)
	}
	return out, rows.Err()
}

// ConsumeResult carries the consumption outcome plus the token's binding so
// the workflow can check the token belongs to its attempt.
type ConsumeResult struct {
	Outcome   ConsumeOutcome `json:"outcome"`
	AttemptID string         `json:"attempt_id,omitempty"`
	Slot      int            `json:"slot,omitempty"`
}

// ConsumeQRToken atomically consumes a token for a verifier. This is the only
// operation that mutates a token, and it is serialized at the database with a
// compare-and-set on the consumed_by column. Concurrent consumers get exactly
// one ok; everyone else gets a precise conflict outcome. Replaying the same
// (token, verifier) pair returns already_consumed_by_same.
func (s *Store) ConsumeQRToken(ctx context.Context, token, verifierID string, now time.Time) (ConsumeResult, error) {
	var (
		attemptID string
		slot      int
	)
	err := s.db.QueryRowContext(ctx, `
		UPDATE qr_tokens
		SET consumed_by = $2, consumed_at = $3
		WHERE token = $1
		  AND consumed_by IS NULL
		  AND invalidated = FALSE
		  AND expires_at > $3
		RETURNING attempt_id, slot`,
		token, verifierID, now).Scan(&attemptID, &slot)
	if err == nil {
		return ConsumeResult{Outcome: ConsumeOK, AttemptID: attemptID, Slot: slot}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return ConsumeResult{}, fmt.Errorf("consume qr token: %w", err)
	}

	// CAS missed; classify why.
	var (
		consumedBy  sql.NullString
		invalidated bool
		expiresAt   time.Time
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT attempt_id, slot, consumed_by, invalidated, expires_at
		FROM qr_tokens WHERE token = $1`, token).
		Scan(&attemptID, &slot, &consumedBy, &invalidated, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ConsumeResult{Outcome: ConsumeInvalid}, nil
	}
	if err != nil {
		return ConsumeResult{}, fmt.Errorf("inspect qr token: %w", err)
	}

	res := ConsumeResult{AttemptID: attemptID, Slot: slot}
	switch {
	case invalidated:
		res.Outcome = ConsumeInvalid
	case consumedBy.Valid && consumedBy.String == verifierID:
		res.Outcome = ConsumeAlreadyConsumedBySame
	case consumedBy.Valid:
		res.Outcome = ConsumeAlreadyConsumedByOther
	case !expiresAt.After(now):
		res.Outcome = ConsumeExpired
	default:
		// The CAS should only miss for one of the reasons above.
		res.Outcome = ConsumeInvalid
	}
	return res, nil
}

// InvalidateQRTokens marks every token of an attempt unusable. Safe to run on
// already-invalidated tokens.
func (s *Store) InvalidateQRTokens(ctx context.Context, attemptID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE qr_tokens SET invalidated = TRUE
		WHERE attempt_id = $1 AND invalidated = FALSE`, attemptID)
	if err != nil {
		return 0, fmt.Errorf("invalidate qr tokens for attempt %s: %w", attemptID, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
