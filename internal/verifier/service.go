// Package verifier decides whether a principal may act as a verifier for a
// given subject and method.
//
// Rules are applied in order; the first match decides:
//  1. profile absent, unauthorized, or revoked -> not authorized
//  2. verifier's own level below Minimal       -> not authorized
//  3. auto-qualifying credential               -> authorized (auto_qualified)
//  4. 50+ attestations with rating >= 4.0      -> authorized (trusted_verifier)
//  5. community_leader tag with rating >= 4.0  -> authorized
//  6. otherwise                                -> not authorized
//
// A verifier may never act on their own subject. Credential tags are
// re-checked against the external registry at most once per 24 hours; the
// cached result is used otherwise.
package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nabr/verification/internal/scoring"
	"github.com/nabr/verification/internal/store"
)

// Credential tags recognized by the authorization rules.
const (
	CredentialNotaryPublic       = "notary_public"
	CredentialAttorney           = "attorney"
	CredentialGovernmentOfficial = "government_official"
	CredentialCommunityLeader    = "community_leader"
	CredentialTrustedVerifier    = "trusted_verifier"
)

// autoQualifying credentials make a principal eligible on their own.
var autoQualifying = map[string]bool{
	CredentialNotaryPublic:       true,
	CredentialAttorney:           true,
	CredentialGovernmentOfficial: true,
}

const (
	trustedVerifierMinCount  = 50
	trustedVerifierMinRating = 4.0
	credentialCheckInterval  = 24 * time.Hour
)

// ProfileSource provides verifier profiles. Satisfied by *store.Store.
type ProfileSource interface {
	GetVerifierProfile(ctx context.Context, principalID string) (*store.VerifierProfile, error)
	TouchCredentialCheck(ctx context.Context, principalID string, at time.Time) error
}

// LevelSource reports a principal's own current trust level.
type LevelSource interface {
	LevelOf(ctx context.Context, principalID string) (scoring.Level, error)
}

// CredentialChecker validates credential tags against external registries
// (notary boards, bar associations). The registry identity is external; this
// package only consumes the surviving tags.
type CredentialChecker interface {
	Check(ctx context.Context, principalID string, credentials []string) ([]string, error)
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Authorized           bool     `json:"authorized"`
	Reasons              []string `json:"reasons,omitempty"`
	EffectiveCredentials []string `json:"effective_credentials,omitempty"`
	AutoQualified        bool     `json:"auto_qualified"`
}

// Service evaluates the authorization rules.
type Service struct {
	profiles ProfileSource
	levels   LevelSource
	checker  CredentialChecker
	cache    *redis.Client // nil disables caching; every call re-checks
	logger   *log.Logger
}

// NewService wires the authorization service.
func NewService(profiles ProfileSource, levels LevelSource, checker CredentialChecker, cache *redis.Client) *Service {
	return &Service{
		profiles: profiles,
		levels:   levels,
		checker:  checker,
		cache:    cache,
		logger:   log.New(log.Writer(), "[VERIFIER-AUTH] ", log.LstdFlags),
	}
}

// Authorize applies the rule chain for one verifier acting on one subject.
func (s *Service) Authorize(ctx context.Context, verifierID, subjectID string, kind scoring.SubjectKind, method scoring.Method) (Decision, error) {
	if verifierID == subjectID {
		return Decision{Reasons: []string{"a verifier may not act on their own subject"}}, nil
	}

	profile, err := s.profiles.GetVerifierProfile(ctx, verifierID)
	if err != nil {
		return Decision{}, err
	}

	// Rule 1: profile must exist, be authorized, and not be revoked.
	if profile == nil {
		return Decision{Reasons: []string{"no verifier profile"}}, nil
	}
	if profile.Revoked {
		return Decision{Reasons: []string{"verifier status revoked: " + profile.RevokedReason}}, nil
	}
	if !profile.Authorized {
		return Decision{Reasons: []string{"verifier authorization pending approval"}}, nil
	}

	// Rule 2: the verifier must themselves be at least Minimal.
	level, err := s.levels.LevelOf(ctx, verifierID)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve verifier level: %w", err)
	}
	if level < scoring.LevelMinimal {
		return Decision{Reasons: []string{"verifier must be verified at minimal level or higher"}}, nil
	}

	credentials, err := s.effectiveCredentials(ctx, profile)
	if err != nil {
		return Decision{}, err
	}

	// Rule 3: auto-qualifying credential.
	for _, c := range credentials {
		if autoQualifying[c] {
			return Decision{
				Authorized:           true,
				AutoQualified:        true,
				EffectiveCredentials: credentials,
			}, nil
		}
	}

	// Rule 4: trusted verifier by track record.
	if profile.AttestedCount >= trustedVerifierMinCount && profile.Rating >= trustedVerifierMinRating {
		return Decision{
			Authorized:           true,
			EffectiveCredentials: append(credentials, CredentialTrustedVerifier),
		}, nil
	}

	// Rule 5: community leader in good standing.
	if contains(credentials, CredentialCommunityLeader) && profile.Rating >= trustedVerifierMinRating {
		return Decision{
			Authorized:           true,
			EffectiveCredentials: credentials,
		}, nil
	}

	return Decision{Reasons: []string{"no qualifying credential or track record"}}, nil
}

// effectiveCredentials returns the profile's credential tags, re-validated
// against the external checker at most once per 24h. The cached result lives
// in redis keyed by principal.
func (s *Service) effectiveCredentials(ctx context.Context, profile *store.VerifierProfile) ([]string, error) {
	if s.checker == nil || len(profile.Credentials) == 0 {
		return profile.Credentials, nil
	}

	cacheKey := "credcheck:" + profile.PrincipalID
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached []string
			if json.Unmarshal(raw, &cached) == nil {
				return cached, nil
			}
		}
	}

	valid, err := s.checker.Check(ctx, profile.PrincipalID, profile.Credentials)
	if err != nil {
		// The registry being unreachable must not block verification;
		// fall back to the stored tags and try again next time.
		s.logger.Printf("credential check failed for %s, using stored tags: %v", profile.PrincipalID, err)
		return profile.Credentials, nil
	}

	if s.cache != nil {
		if raw, err := json.Marshal(valid); err == nil {
			s.cache.Set(ctx, cacheKey, raw, credentialCheckInterval)
		}
	}
	if err := s.profiles.TouchCredentialCheck(ctx, profile.PrincipalID, time.Now()); err != nil {
		s.logger.Printf("failed to record credential check for %s: %v", profile.PrincipalID, err)
	}
	return valid, nil
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
