package risk

import "math"

// criticalWeight is the adjusted risk weight that escalates straight to
// GradeVeryHigh regardless of the score.
const criticalWeight = 9

// Score band edges shared by Classify and Explain.
const (
	veryHighMax = -15.0
	highMax     = -8.0
	mediumMax   = -3.0
	neutralMax  = 5.0
	praiseMin   = 15.0
)

// Classify maps a score and its breakdown to a Grade. A single critical
// risk term (legal threats, fraud) outranks any amount of praise.
func Classify(score float64, b Breakdown) Grade {
	for _, o := range b.Negative {
		if math.Abs(o.Weight) >= criticalWeight {
			return GradeVeryHigh
		}
	}
	switch {
	case score <= veryHighMax:
		return GradeVeryHigh
	case score <= highMax:
		return GradeHigh
	case score <= mediumMax:
		return GradeMedium
	case score < neutralMax:
		if len(b.Negative) > 0 {
			return GradeMedium
		}
		return GradeLow
	default:
		return GradeLow
	}
}
