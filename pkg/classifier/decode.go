package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/denizumutdereli/npsrisk/pkg/risk"
)

// Reasons carried by *ParseError. Each wraps the matching risk sentinel so
// the analyzer can classify the fallback.
var (
	ErrNoJSON           = fmt.Errorf("no JSON object in response: %w", risk.ErrMalformedVerdict)
	ErrInvalidGrade     = fmt.Errorf("invalid grau_risco: %w", risk.ErrUnknownGrade)
	ErrEmptyExplanation = fmt.Errorf("empty explicacao: %w", risk.ErrEmptyExplanation)
)

// ParseError reports a model response that does not carry a usable verdict.
type ParseError struct {
	Reason error
	Raw    string
}

func (e *ParseError) Error() string {
	return "classifier response: " + e.Reason.Error()
}

func (e *ParseError) Unwrap() error { return e.Reason }

// strictPolicy strips every tag; explanations are plain text.
var strictPolicy = bluemonday.StrictPolicy()

type wireVerdict struct {
	Grade       string `json:"grau_risco"`
	Explanation string `json:"explicacao"`
}

// ParseResponse decodes a model reply of the form
// {"grau_risco": "...", "explicacao": "..."}, tolerating code fences and
// chatter around the object. Grades are repaired with risk.ParseGrade.
func ParseResponse(raw string) (risk.Verdict, error) {
	w, ok := firstObject(stripCodeFences(raw))
	if !ok {
		return risk.Verdict{}, &ParseError{Reason: ErrNoJSON, Raw: raw}
	}

	grade, err := risk.ParseGrade(w.Grade)
	if err != nil {
		return risk.Verdict{}, &ParseError{Reason: ErrInvalidGrade, Raw: raw}
	}

	explanation := cleanExplanation(w.Explanation)
	if explanation == "" {
		return risk.Verdict{}, &ParseError{Reason: ErrEmptyExplanation, Raw: raw}
	}
	return risk.Verdict{Grade: grade, Explanation: explanation}, nil
}

// IsParseError reports whether err came from ParseResponse.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

func stripCodeFences(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, ln := range lines {
		if strings.HasPrefix(strings.TrimSpace(ln), "```") {
			continue
		}
		out = append(out, ln)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// firstObject decodes the first JSON object found in s. Braces inside
// strings are handled by the decoder.
func firstObject(s string) (wireVerdict, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		var w wireVerdict
		if err := json.NewDecoder(strings.NewReader(s[i:])).Decode(&w); err == nil {
			return w, true
		}
	}
	return wireVerdict{}, false
}

func cleanExplanation(s string) string {
	s = html.UnescapeString(strictPolicy.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}
