package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// VerifierProfile is a principal authorized to vouch for others.
type VerifierProfile struct {
	PrincipalID           string     `json:"principal_id"`
	Authorized            bool       `json:"authorized"`
	AutoQualified         bool       `json:"auto_qualified"`
	Credentials           []string   `json:"credentials"`
	AttestedCount         int        `json:"attested_count"`
	RejectionCount        int        `json:"rejection_count"`
	Rating                float64    `json:"rating"`
	Revoked               bool       `json:"revoked"`
	RevokedReason         string     `json:"revoked_reason,omitempty"`
	LastCredentialCheckAt *time.Time `json:"last_credential_check_at,omitempty"`
}

// Effective reports whether the profile may currently act as a verifier
// precondition; authorization rules layer on top of this.
func (p VerifierProfile) Effective() bool {
	return p.Authorized && !p.Revoked
}

// GetVerifierProfile fetches a profile; a missing profile returns (nil, nil).
func (s *Store) GetVerifierProfile(ctx context.Context, principalID string) (*VerifierProfile, error) {
	var (
		p       VerifierProfile
		reason  sql.NullString
		checked sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT principal_id, authorized, auto_qualified, credentials, attested_count,
		       rejection_count, rating, revoked, revoked_reason, last_credential_check_at
		FROM verifier_profiles WHERE principal_id = $1`, principalID).
		Scan(&p.PrincipalID, &p.Authorized, &p.AutoQualified, pq.Array(&p.Credentials),
			&p.AttestedCount, &p.RejectionCount, &p.Rating, &p.Revoked, &reason, &checked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get verifier profile %s: %w", principalID, err)
	}
	p.RevokedReason = reason.String
	if checked.Valid {
		p.LastCredentialCheckAt = &checked.Time
	}
	return &p, nil
}

// UpsertVerifierProfile creates or replaces a profile.
func (s *Store) UpsertVerifierProfile(ctx context.Context, p VerifierProfile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verifier_profiles
			(principal_id, authorized, auto_qualified, credentials, attested_count,
			 rejection_count, rating, revoked, revoked_reason, last_credential_check_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (principal_id) DO UPDATE SET
			authorized = EXCLUDED.authorized,
			auto_qualified = EXCLUDED.auto_qualified,
			credentials = EXCLUDED.credentials,
			attested_count = EXCLUDED.attested_count,
			rejection_count = EXCLUDED.rejection_count,
			rating = EXCLUDED.rating,
			revoked = EXCLUDED.revoked,
			revoked_reason = EXCLUDED.revoked_reason,
			last_credential_check_at = EXCLUDED.last_credential_check_at`,
		p.PrincipalID, p.Authorized, p.AutoQualified, pq.Array(p.Credentials),
		p.AttestedCount, p.RejectionCount, p.Rating, p.Revoked,
		nullIfEmpty(p.RevokedReason), p.LastCredentialCheckAt)
	if err != nil {
		return fmt.Errorf("upsert verifier profile %s: %w", p.PrincipalID, err)
	}
	return nil
}

// RevokeVerifier terminally revokes a profile. Revoking an already-revoked
// profile keeps the original reason.
func (s *Store) RevokeVerifier(ctx context.Context, principalID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE verifier_profiles
		SET revoked = TRUE, revoked_reason = COALESCE(revoked_reason, $2)
		WHERE principal_id = $1`, principalID, reason)
	if err != nil {
		return fmt.Errorf("revoke verifier %s: %w", principalID, err)
	}
	return nil
}

// TouchCredentialCheck records that an external credential re-check ran.
func (s *Store) TouchCredentialCheck(ctx context.Context, principalID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE verifier_profiles SET last_credential_check_at = $2
		WHERE principal_id = $1`, principalID, at)
	if err != nil {
		return fmt.Errorf("touch credential check %s: %w", principalID, err)
	}
	return nil
}

// IncrementAttestedCount bumps the verifier's successful attestation counter.
func (s *Store) IncrementAttestedCount(ctx context.Context, principalID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE verifier_profiles SET attested_count = attested_count + 1
		WHERE principal_id = $1`, principalID)
	if err != nil {
		return fmt.Errorf("increment attested count %s: %w", principalID, err)
	}
	return nil
}
