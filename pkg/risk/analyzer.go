package risk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"
)

// Source records which path produced a Result.
type Source string

const (
	SourceNoInput   Source = "no_input"
	SourceHeuristic Source = "heuristic"
	SourceExternal  Source = "external"
)

// Result is the outcome of analysing one comment. Explanation is never
// empty and Grade is always valid.
type Result struct {
	Grade       Grade       `json:"grade" msgpack:"grade"`
	Explanation string      `json:"explanation" msgpack:"explanation"`
	Source      Source      `json:"source" msgpack:"source"`
	Assessment  *Assessment `json:"assessment,omitempty" msgpack:"assessment,omitempty"`
}

// Verdict is what an external classifier returns.
type Verdict struct {
	Grade       Grade
	Explanation string
}

// Validate reports why a verdict cannot be used as a Result.
func (v Verdict) Validate() error {
	if !v.Grade.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownGrade, int(v.Grade))
	}
	if strings.TrimSpace(v.Explanation) == "" {
		return ErrEmptyExplanation
	}
	return nil
}

// Classifier is an external grader consulted before the heuristic.
// Implementations enforce their own timeouts and rate limits.
type Classifier interface {
	Classify(ctx context.Context, description, comment string) (Verdict, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, description, comment string) (Verdict, error)

func (f ClassifierFunc) Classify(ctx context.Context, description, comment string) (Verdict, error) {
	return f(ctx, description, comment)
}

// FallbackReason says why an external verdict was discarded.
type FallbackReason string

const (
	FallbackUnavailable      FallbackReason = "unavailable"
	FallbackTimeout          FallbackReason = "timeout"
	FallbackMalformed        FallbackReason = "malformed"
	FallbackInvalidGrade     FallbackReason = "invalid_grade"
	FallbackEmptyExplanation FallbackReason = "empty_explanation"
	FallbackPanic            FallbackReason = "panic"
)

// FallbackHook observes every discarded external verdict.
type FallbackHook func(reason FallbackReason, err error)

// Analyzer runs the optional external classifier and falls back to the
// heuristic engine. It never returns an error.
type Analyzer struct {
	engine     *Engine
	classifier Classifier
	onFallback FallbackHook
	withDetail bool
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithClassifier consults c before the heuristic. A nil interface leaves
// the analyzer heuristic-only; a typed nil such as a nil pointer is still
// consulted, so its Classify must return an error rather than panic.
func WithClassifier(c Classifier) AnalyzerOption {
	return func(a *Analyzer) { a.classifier = c }
}

// WithFallbackHook registers fn to observe external fallbacks.
func WithFallbackHook(fn FallbackHook) AnalyzerOption {
	return func(a *Analyzer) { a.onFallback = fn }
}

// WithAssessment attaches the heuristic Assessment to heuristic results.
func WithAssessment() AnalyzerOption {
	return func(a *Analyzer) { a.withDetail = true }
}

// NewAnalyzer creates an Analyzer over engine. A nil engine selects the
// default lexicon.
func NewAnalyzer(engine *Engine, opts ...AnalyzerOption) *Analyzer {
	if engine == nil {
		engine = DefaultEngine()
	}
	a := &Analyzer{engine: engine}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Engine returns the heuristic engine behind the analyzer.
func (a *Analyzer) Engine() *Engine { return a.engine }

// HasClassifier reports whether an external classifier is wired in.
func (a *Analyzer) HasClassifier() bool { return a.classifier != nil }

// Analyze grades one description/comment pair.
func (a *Analyzer) Analyze(ctx context.Context, description, comment string) Result {
	if utf8.RuneCountInString(strings.TrimSpace(comment)) < minTextRunes {
		return Result{Grade: GradeLow, Explanation: NoCommentMessage, Source: SourceNoInput}
	}

	if a.classifier != nil {
		if v, ok := a.external(ctx, description, comment); ok {
			return Result{Grade: v.Grade, Explanation: strings.TrimSpace(v.Explanation), Source: SourceExternal}
		}
	}

	as := a.engine.Assess(description, comment)
	r := Result{Grade: as.Grade, Explanation: as.Explanation, Source: SourceHeuristic}
	if a.withDetail {
		r.Assessment = &as
	}
	return r
}

func (a *Analyzer) external(ctx context.Context, description, comment string) (v Verdict, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			a.fallback(FallbackPanic, fmt.Errorf("classifier panic: %v", rec))
			v, ok = Verdict{}, false
		}
	}()

	v, err := a.classifier.Classify(ctx, description, comment)
	if err == nil {
		err = v.Validate()
	}
	if err != nil {
		a.fallback(fallbackReason(err), err)
		return Verdict{}, false
	}
	return v, true
}

func (a *Analyzer) fallback(reason FallbackReason, err error) {
	if a.onFallback != nil {
		a.onFallback(reason, err)
	}
}

func fallbackReason(err error) FallbackReason {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return FallbackTimeout
	case errors.Is(err, ErrUnknownGrade):
		return FallbackInvalidGrade
	case errors.Is(err, ErrEmptyExplanation):
		return FallbackEmptyExplanation
	case errors.Is(err, ErrMalformedVerdict):
		return FallbackMalformed
	default:
		return FallbackUnavailable
	}
}

var (
	defaultEngine *Engine
	engineOnce    sync.Once
)

// DefaultEngine returns an Engine over the embedded lexicon with the
// default overlap policy.
func DefaultEngine() *Engine {
	engineOnce.Do(func() {
		defaultEngine = NewEngine(nil)
	})
	return defaultEngine
}

// Score is the pure heuristic entry point: it grades a pair with the
// default engine and never consults an external classifier.
func Score(description, comment string) (Grade, string) {
	if utf8.RuneCountInString(strings.TrimSpace(comment)) < minTextRunes {
		return GradeLow, NoCommentMessage
	}
	as := DefaultEngine().Assess(description, comment)
	return as.Grade, as.Explanation
}
