package risk

import (
	"fmt"
	"strings"

	"github.com/denizumutdereli/npsrisk/pkg/textnorm"
)

// Grade is the ordinal reputational-risk severity of a comment.
// Larger values are more severe.
type Grade int

const (
	GradeLow Grade = iota
	GradeMedium
	GradeHigh
	GradeVeryHigh
)

var gradeLabels = [...]string{
	GradeLow:      "Baixo",
	GradeMedium:   "Médio",
	GradeHigh:     "Alto",
	GradeVeryHigh: "Muito Alto",
}

// Grades lists every grade from most to least severe, the order reports
// and summaries use.
func Grades() []Grade {
	return []Grade{GradeVeryHigh, GradeHigh, GradeMedium, GradeLow}
}

// String returns the canonical label, diacritics included.
func (g Grade) String() string {
	if !g.Valid() {
		return fmt.Sprintf("Grade(%d)", int(g))
	}
	return gradeLabels[g]
}

// Valid reports whether g is one of the four defined grades.
func (g Grade) Valid() bool {
	return g >= GradeLow && g <= GradeVeryHigh
}

func (g Grade) MarshalText() ([]byte, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownGrade, int(g))
	}
	return []byte(gradeLabels[g]), nil
}

func (g *Grade) UnmarshalText(b []byte) error {
	parsed, err := ParseGrade(string(b))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// fuzzyLabels is checked in order; "muito alto" must precede "alto".
var fuzzyLabels = []struct {
	needle string
	grade  Grade
}{
	{"muito alto", GradeVeryHigh},
	{"alto", GradeHigh},
	{"medio", GradeMedium},
	{"baixo", GradeLow},
}

// ParseGrade maps a label to a Grade. Canonical labels match exactly;
// anything else is accent/case folded and searched for the known labels
// as substrings, so "ALTO." or "Risco medio" still resolve.
func ParseGrade(label string) (Grade, error) {
	trimmed := strings.TrimSpace(label)
	for g, l := range gradeLabels {
		if trimmed == l {
			return Grade(g), nil
		}
	}
	folded := textnorm.Normalize(trimmed)
	if folded != "" {
		for _, f := range fuzzyLabels {
			if strings.Contains(folded, f.needle) {
				return f.grade, nil
			}
		}
	}
	return GradeLow, fmt.Errorf("%w: %q", ErrUnknownGrade, label)
}
