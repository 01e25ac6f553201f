package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nabr/verification/internal/scoring"
)

// MethodCompletion is the durable record of a successfully finished method.
type MethodCompletion struct {
	SubjectID            string                 `json:"subject_id"`
	Method               scoring.Method         `json:"method"`
	CompletedAt          time.Time              `json:"completed_at"`
	Count                int                    `json:"count"`
	PointsAwarded        int                    `json:"points_awarded"`
	ExpiresAt            *time.Time             `json:"expires_at,omitempty"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
	SourceVerificationID string                 `json:"source_verification_id,omitempty"`
}

// Active reports whether the completion still contributes points at t.
func (c MethodCompletion) Active(t time.Time) bool {
	return c.ExpiresAt == nil || c.ExpiresAt.After(t)
}

// UpsertCompletion replaces any existing completion for (subject, method).
// Renewal replaces, never duplicates; replays with the same source
// verification id are safe.
func (s *Store) UpsertCompletion(ctx context.Context, c MethodCompletion) error {
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("marshal completion metadata: %w", err)
	}
	if c.Metadata == nil {
		meta = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO method_completions
			(subject_id, method, completed_at, count, points_awarded, expires_at, metadata, source_verification_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (subject_id, method) DO UPDATE SET
			completed_at = EXCLUDED.completed_at,
			count = EXCLUDED.count,
			points_awarded = EXCLUDED.points_awarded,
			expires_at = EXCLUDED.expires_at,
			metadata = EXCLUDED.metadata,
			source_verification_id = EXCLUDED.source_verification_id`,
		c.SubjectID, string(c.Method), c.CompletedAt, c.Count, c.PointsAwarded,
		c.ExpiresAt, meta, nullIfEmpty(c.SourceVerificationID))
	if err != nil {
		return fmt.Errorf("upsert completion %s/%s: %w", c.SubjectID, c.Method, err)
	}
	return nil
}

// RetractCompletion removes a completion (revocation or expiry). Retracting
// an absent completion is a no-op.
func (s *Store) RetractCompletion(ctx context.Context, subjectID string, method scoring.Method) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM method_completions WHERE subject_id = $1 AND method = $2`,
		subjectID, string(method))
	if err != nil {
		return fmt.Errorf("retract completion %s/%s: %w", subjectID, method, err)
	}
	return nil
}

// ListCompletions returns all completions for a subject.
func (s *Store) ListCompletions(ctx context.Context, subjectID string) ([]MethodCompletion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject_id, method, completed_at, count, points_awarded, expires_at, metadata, source_verification_id
		FROM method_completions WHERE subject_id = $1`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()
	return scanCompletions(rows)
}

// ListExpiringCompletions returns completions whose expires_at has passed.
func (s *Store) ListExpiringCompletions(ctx context.Context, now time.Time) ([]MethodCompletion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject_id, method, completed_at, count, points_awarded, expires_at, metadata, source_verification_id
		FROM method_completions WHERE expires_at IS NOT NULL AND expires_at < $1`, now)
	if err != nil {
		return nil, fmt.Errorf("list expiring completions: %w", err)
	}
	defer rows.Close()
	return scanCompletions(rows)
}

func scanCompletions(rows *sql.Rows) ([]MethodCompletion, error) {
	var out []MethodCompletion
	for rows.Next() {
		var (
			c      MethodCompletion
			method string
			meta   []byte
			source sql.NullString
		)
		if err := rows.Scan(&c.SubjectID, &method, &c.CompletedAt, &c.Count,
			&c.PointsAwarded, &c.ExpiresAt, &meta, &source); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		c.Method = scoring.Method(method)
		c.SourceVerificationID = source.String
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &c.Metadata)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
