package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nabr/verification/internal/audit"
)

// RecordEvent appends one audit event. Events are append-only; replaying the
// same event id is a no-op.
func (s *Store) RecordEvent(ctx context.Context, e audit.Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("marshal audit data: %w", err)
	}
	if e.Data == nil {
		data = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events
			(event_id, subject_id, occurred_at, kind, method, attempt_id, actor_id, data, orchestrator_instance_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING`,
		e.EventID, e.SubjectID, e.OccurredAt, string(e.Kind),
		nullIfEmpty(e.Method), nullIfEmpty(e.AttemptID), nullIfEmpty(e.ActorID),
		data, nullIfEmpty(e.InstanceID))
	if err != nil {
		return fmt.Errorf("record audit event %s: %w", e.EventID, err)
	}
	return nil
}

// ListEvents returns a subject's audit trail in occurrence order.
func (s *Store) ListEvents(ctx context.Context, subjectID string, since time.Time) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, subject_id, occurred_at, kind, method, attempt_id, actor_id, data, orchestrator_instance_id
		FROM audit_events
		WHERE subject_id = $1 AND occurred_at >= $2
		ORDER BY occurred_at`, subjectID, since)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			e                           audit.Event
			kind                        string
			method, attemptID, actorID  sql.NullString
			instanceID                  sql.NullString
			data                        []byte
		)
		if err := rows.Scan(&e.EventID, &e.SubjectID, &e.OccurredAt, &kind,
			&method, &attemptID, &actorID, &data, &instanceID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Kind = audit.Kind(kind)
		e.Method = method.String
		e.AttemptID = attemptID.String
		e.ActorID = actorID.String
		e.InstanceID = instanceID.String
		if len(data) > 0 {
			_ = json.Unmarshal(data, &e.Data)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
