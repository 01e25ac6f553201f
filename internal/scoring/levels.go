package scoring

// Level is a named band of trust scores. Levels are totally ordered.
type Level int

const (
	LevelUnverified Level = iota
	LevelMinimal
	LevelStandard
	LevelEnhanced
	LevelComplete
)

// Thresholds are uniform across subject kinds. The original per-kind baseline
// tables are advisory suggestions, not gates.
const (
	ThresholdMinimal  = 100
	ThresholdStandard = 250
	ThresholdEnhanced = 400
	ThresholdComplete = 600
)

func (l Level) String() string {
	switch l {
	case LevelUnverified:
		return "unverified"
	case LevelMinimal:
		return "minimal"
	case LevelStandard:
		return "standard"
	case LevelEnhanced:
		return "enhanced"
	case LevelComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// ParseLevel converts a level name back into a Level. Unknown names map to
// Unverified.
func ParseLevel(s string) Level {
	switch s {
	case "minimal":
		return LevelMinimal
	case "standard":
		return LevelStandard
	case "enhanced":
		return LevelEnhanced
	case "complete":
		return LevelComplete
	default:
		return LevelUnverified
	}
}

// Threshold returns the minimum score for a level.
func (l Level) Threshold() int {
	switch l {
	case LevelMinimal:
		return ThresholdMinimal
	case LevelStandard:
		return ThresholdStandard
	case LevelEnhanced:
		return ThresholdEnhanced
	case LevelComplete:
		return ThresholdComplete
	default:
		return 0
	}
}

// LevelForScore returns the highest level whose threshold the score meets.
func LevelForScore(score int) Level {
	switch {
	case score >= ThresholdComplete:
		return LevelComplete
	case score >= ThresholdEnhanced:
		return LevelEnhanced
	case score >= ThresholdStandard:
		return LevelStandard
	case score >= ThresholdMinimal:
		return LevelMinimal
	default:
		return LevelUnverified
	}
}

// TrustScore computes the total score for a bag of (method, count)
// completions, restricted to the subject's applicable methods. Methods with a
// count above their multiplier contribute at the cap; unknown or inapplicable
// methods contribute zero.
func TrustScore(completed map[Method]int, kind SubjectKind) int {
	total := 0
	for m, count := range completed {
		if !m.ApplicableTo(kind) {
			continue
		}
		total += Points(m, count)
	}
	return total
}
