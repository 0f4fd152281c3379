// Package classifier grades NPS comments with a hosted LLM. Its Client
// satisfies risk.Classifier; every failure comes back as an error so the
// risk analyzer can fall back to the lexicon heuristic.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/denizumutdereli/npsrisk/pkg/risk"
)

// ErrUnavailable wraps transport, quota and status failures.
var ErrUnavailable = errors.New("classifier unavailable")

// Provider names accepted in configuration.
const (
	ProviderNone   = "none"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

const (
	DefaultOpenAIModel     = "gpt-4o-mini"
	DefaultGeminiModel     = "gemini-2.0-flash"
	DefaultOpenAIBaseURL   = "https://api.openai.com/v1"
	DefaultTimeout         = 20 * time.Second
	DefaultTemperature     = 0.1
	DefaultMaxOutputTokens = 250
)

// Config selects and tunes the provider.
type Config struct {
	Provider        string
	Model           string
	APIKey          string
	BaseURL         string
	Timeout         time.Duration
	RateLimitRPS    float64
	RateLimitBurst  int
	Temperature     float64
	MaxOutputTokens int
}

// Completer sends one system+user prompt pair to a model and returns its
// raw text reply.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Name() string
}

// Observer is notified after every model call.
type Observer func(provider string, elapsed time.Duration, err error)

// Client adapts a Completer to risk.Classifier with rate limiting and a
// per-call timeout.
type Client struct {
	completer Completer
	limiter   *rate.Limiter
	timeout   time.Duration
	observe   Observer
}

// Option configures a Client.
type Option func(*Client)

// WithObserver registers fn to observe model calls.
func WithObserver(fn Observer) Option {
	return func(c *Client) { c.observe = fn }
}

// WithRateLimit caps calls per second. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTimeout bounds each model call. d <= 0 leaves the caller's deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// NewClient wraps completer.
func NewClient(completer Completer, opts ...Option) *Client {
	c := &Client{completer: completer, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// New builds a Client for cfg.Provider. It returns (nil, nil) when the
// provider is empty or "none".
func New(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	var (
		completer Completer
		err       error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderNone:
		return nil, nil
	case ProviderOpenAI:
		completer, err = NewOpenAI(cfg)
	case ProviderGemini:
		completer, err = NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	base := []Option{WithTimeout(cfg.Timeout), WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst)}
	return NewClient(completer, append(base, opts...)...), nil
}

// Provider returns the underlying provider name.
func (c *Client) Provider() string {
	if c == nil || c.completer == nil {
		return ProviderNone
	}
	return c.completer.Name()
}

// Classify asks the model for a verdict on one pair. A nil Client, as New
// returns for provider "none", fails with ErrUnavailable.
func (c *Client) Classify(ctx context.Context, description, comment string) (risk.Verdict, error) {
	if c == nil || c.completer == nil {
		return risk.Verdict{}, fmt.Errorf("%w: no provider configured", ErrUnavailable)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return risk.Verdict{}, fmt.Errorf("%w: rate limit: %w", ErrUnavailable, err)
		}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := c.completer.Complete(ctx, systemPrompt, BuildPrompt(description, comment))
	if c.observe != nil {
		c.observe(c.completer.Name(), time.Since(start), err)
	}
	if err != nil {
		return risk.Verdict{}, fmt.Errorf("%w: %s: %w", ErrUnavailable, c.completer.Name(), err)
	}
	return ParseResponse(reply)
}
