package scoring

// SuggestedPath is one pre-curated minimal method combination that raises a
// subject to the next level.
type SuggestedPath struct {
	Label   string   `json:"label"`
	Methods []Method `json:"methods"`
}

// NextLevelInfo describes what a subject needs for the next level.
type NextLevelInfo struct {
	CurrentScore   int             `json:"current_score"`
	CurrentLevel   Level           `json:"current_level"`
	NextLevel      *Level          `json:"next_level,omitempty"`
	PointsNeeded   int             `json:"points_needed"`
	SuggestedPaths []SuggestedPath `json:"suggested_paths"`
}

// Curated minimal paths per kind. These are suggestions only; any method
// combination that clears the threshold works.
var suggestedPaths = map[SubjectKind][]SuggestedPath{
	KindIndividual: {
		{Label: "two trusted community members vouch in person", Methods: []Method{MethodInPersonTwoParty}},
		{Label: "three personal references", Methods: []Method{MethodPersonalReference}},
		{Label: "email, phone and a community attestation", Methods: []Method{MethodEmail, MethodPhone, MethodCommunityAttestation}},
		{Label: "government id review", Methods: []Method{MethodGovernmentID}},
		{Label: "notarized identity verification", Methods: []Method{MethodNotaryVerification}},
	},
	KindBusiness: {
		{Label: "business license review", Methods: []Method{MethodBusinessLicense}},
		{Label: "tax id plus email and phone", Methods: []Method{MethodTaxID, MethodEmail, MethodPhone}},
		{Label: "notarized owner verification", Methods: []Method{MethodNotaryVerification}},
	},
	KindOrganization: {
		{Label: "501(c)(3) documentation review", Methods: []Method{MethodOrganization501c3}},
		{Label: "tax id plus email and phone", Methods: []Method{MethodTaxID, MethodEmail, MethodPhone}},
		{Label: "notarized director verification", Methods: []Method{MethodNotaryVerification}},
	},
}

// NextLevel returns the gap to the next level and the curated paths that are
// not already fully satisfied by the completed set. At Complete it returns a
// nil next level and no paths.
func NextLevel(score int, kind SubjectKind, completed map[Method]int) NextLevelInfo {
	current := LevelForScore(score)
	info := NextLevelInfo{
		CurrentScore: score,
		CurrentLevel: current,
	}

	if current == LevelComplete {
		return info
	}

	next := current + 1
	info.NextLevel = &next
	info.PointsNeeded = next.Threshold() - score

	for _, path := range suggestedPaths[kind] {
		if pathSatisfied(path, completed) {
			continue
		}
		info.SuggestedPaths = append(info.SuggestedPaths, path)
	}
	return info
}

// pathSatisfied reports whether every method on a path is already completed
// at its multiplier cap.
func pathSatisfied(path SuggestedPath, completed map[Method]int) bool {
	for _, m := range path.Methods {
		count, ok := completed[m]
		if !ok {
			return false
		}
		if count < MethodScores[m].MaxMultiplier {
			return false
		}
	}
	return true
}
