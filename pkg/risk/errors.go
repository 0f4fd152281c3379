package risk

import "errors"

var (
	ErrUnknownGrade     = errors.New("unknown risk grade")
	ErrEmptyExplanation = errors.New("empty explanation")
	ErrMalformedVerdict = errors.New("malformed classifier verdict")
)
