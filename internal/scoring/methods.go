// Package scoring implements the progressive-trust scoring model.
//
// Everything in this package is pure: method point values, multipliers and
// decay windows are static tables, and score/level calculation is a function
// of the completion set alone. The orchestrator recomputes its derived fields
// from scratch through these functions whenever the completion set changes.
package scoring

import "time"

// SubjectKind identifies the kind of principal being verified.
type SubjectKind string

const (
	KindIndividual   SubjectKind = "individual"
	KindBusiness     SubjectKind = "business"
	KindOrganization SubjectKind = "organization"
)

// Valid reports whether the kind is a member of the closed set.
func (k SubjectKind) Valid() bool {
	switch k {
	case KindIndividual, KindBusiness, KindOrganization:
		return true
	}
	return false
}

// Method is an enumerated verification capability.
type Method string

const (
	MethodEmail                Method = "email"
	MethodPhone                Method = "phone"
	MethodGovernmentID         Method = "government_id"
	MethodInPersonTwoParty     Method = "in_person_two_party"
	MethodPersonalReference    Method = "personal_reference"
	MethodCommunityAttestation Method = "community_attestation"
	MethodPlatformHistory      Method = "platform_history"
	MethodTransactionHistory   Method = "transaction_history"
	MethodBusinessLicense      Method = "business_license"
	MethodTaxID                Method = "tax_id"
	MethodOrganization501c3    Method = "organization_501c3"
	MethodNotaryVerification   Method = "notary_verification"
)

// MethodScore holds the per-method scoring metadata.
type MethodScore struct {
	BasePoints       int
	MaxMultiplier    int
	DecayDays        int // 0 = never decays
	NeedsHumanReview bool
	ApplicableKinds  []SubjectKind
}

var allKinds = []SubjectKind{KindIndividual, KindBusiness, KindOrganization}

// MethodScores is the closed scoring table. Invariant: for every method,
// BasePoints * MaxMultiplier stays below the Complete threshold (600), so no
// single method can carry a subject to Complete on its own.
var MethodScores = map[Method]MethodScore{
	MethodEmail:                {BasePoints: 30, MaxMultiplier: 1, DecayDays: 365, ApplicableKinds: allKinds},
	MethodPhone:                {BasePoints: 30, MaxMultiplier: 1, DecayDays: 365, ApplicableKinds: allKinds},
	MethodGovernmentID:         {BasePoints: 100, MaxMultiplier: 1, DecayDays: 1825, NeedsHumanReview: true, ApplicableKinds: allKinds},
	MethodInPersonTwoParty:     {BasePoints: 150, MaxMultiplier: 1, DecayDays: 730, ApplicableKinds: []SubjectKind{KindIndividual}},
	MethodPersonalReference:    {BasePoints: 50, MaxMultiplier: 3, DecayDays: 730, ApplicableKinds: []SubjectKind{KindIndividual}},
	MethodCommunityAttestation: {BasePoints: 50, MaxMultiplier: 3, DecayDays: 730, ApplicableKinds: allKinds},
	MethodPlatformHistory:      {BasePoints: 20, MaxMultiplier: 5, DecayDays: 0, ApplicableKinds: allKinds},
	MethodTransactionHistory:   {BasePoints: 15, MaxMultiplier: 5, DecayDays: 0, ApplicableKinds: allKinds},
	MethodBusinessLicense:      {BasePoints: 120, MaxMultiplier: 1, DecayDays: 1825, NeedsHumanReview: true, ApplicableKinds: []SubjectKind{KindBusiness}},
	MethodTaxID:                {BasePoints: 80, MaxMultiplier: 1, DecayDays: 0, NeedsHumanReview: true, ApplicableKinds: []SubjectKind{KindBusiness, KindOrganization}},
	MethodOrganization501c3:    {BasePoints: 120, MaxMultiplier: 1, DecayDays: 1825, NeedsHumanReview: true, ApplicableKinds: []SubjectKind{KindOrganization}},
	MethodNotaryVerification:   {BasePoints: 100, MaxMultiplier: 1, DecayDays: 1095, ApplicableKinds: allKinds},
}

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	_, ok := MethodScores[m]
	return ok
}

// ApplicableTo reports whether the method may be used by the given subject kind.
func (m Method) ApplicableTo(kind SubjectKind) bool {
	info, ok := MethodScores[m]
	if !ok {
		return false
	}
	for _, k := range info.ApplicableKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ApplicableMethods returns the methods available to a subject kind.
func ApplicableMethods(kind SubjectKind) []Method {
	var out []Method
	for m, info := range MethodScores {
		for _, k := range info.ApplicableKinds {
			if k == kind {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// Points returns the points awarded for completing m count times,
// respecting the method's max multiplier.
func Points(m Method, count int) int {
	info, ok := MethodScores[m]
	if !ok || count <= 0 {
		return 0
	}
	if count > info.MaxMultiplier {
		count = info.MaxMultiplier
	}
	return count * info.BasePoints
}

// Decay returns the validity window for a completed method, or zero if the
// method never decays.
func Decay(m Method) time.Duration {
	info, ok := MethodScores[m]
	if !ok || info.DecayDays == 0 {
		return 0
	}
	return time.Duration(info.DecayDays) * 24 * time.Hour
}

// Deadline returns the hard deadline for an in-flight attempt of m.
func Deadline(m Method) time.Duration {
	switch m {
	case MethodEmail, MethodPhone:
		return 24 * time.Hour
	case MethodInPersonTwoParty:
		return 72 * time.Hour
	default:
		// Document review methods wait on a human reviewer.
		return 7 * 24 * time.Hour
	}
}
