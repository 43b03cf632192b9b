package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"ai-grid-trader/internal/api"
	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/logger"
	"ai-grid-trader/internal/types"
)

// ErrMissingAPIKey is returned by providers constructed without a key.
var ErrMissingAPIKey = errors.New("missing API key")

// ErrNoModels means no model list was configured and the provider has no
// built-in fallback chain.
var ErrNoModels = errors.New("no models configured")

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Config struct {
	Models          []string
	Temperature     float64
	MaxOutputTokens int
	CallTimeout     time.Duration
	MaxAttempts     int
	RateLimitBase   time.Duration
	RateLimitStep   time.Duration
	RetryDelay      time.Duration
}

// DefaultModels is the primary, secondary and tertiary model for a provider,
// keyed by Completer.Name. Unknown providers have no default chain.
func DefaultModels(provider string) []string {
	switch strings.ToLower(provider) {
	case "gemini":
		return []string{"gemini-2.0-flash", "gemini-2.0-flash-lite", "gemini-1.5-flash"}
	case "openai":
		return []string{"gpt-4o-mini", "gpt-4.1-mini", "gpt-3.5-turbo"}
	case "claude":
		return []string{"claude-3-5-haiku-latest", "claude-3-5-sonnet-latest", "claude-3-haiku-20240307"}
	}
	return nil
}

func (c Config) withDefaults(provider string) Config {
	if len(c.Models) == 0 {
		c.Models = DefaultModels(provider)
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = 512
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RateLimitBase <= 0 {
		c.RateLimitBase = 25 * time.Second
	}
	if c.RateLimitStep <= 0 {
		c.RateLimitStep = 5 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	return c
}

// Advisor wraps a Completer with caching, retry, model fallback and lenient parsing.
type Advisor struct {
	cfg       Config
	completer interfaces.Completer
	cache     *Cache
	sleep     Sleeper
}

var _ interfaces.Advisor = (*Advisor)(nil)

type Option func(*Advisor)

// WithSleeper replaces the wait used between retries.
func WithSleeper(s Sleeper) Option {
	return func(a *Advisor) {
		a.sleep = s
	}
}

// NewAdvisor builds an advisor. cache may be nil to disable caching.
func NewAdvisor(cfg Config, completer interfaces.Completer, cache *Cache, opts ...Option) *Advisor {
	a := &Advisor{
		cfg:       cfg.withDefaults(completer.Name()),
		completer: completer,
		cache:     cache,
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Advise returns cached advice when fresh, otherwise asks the provider.
func (a *Advisor) Advise(ctx context.Context, req types.AdviceRequest) types.Advice {
	strategy := NormalizeStrategy(req.Strategy)
	req.Strategy = strategy

	if adv, ok := a.cache.Get(req.Symbol, strategy); ok {
		adv.Cached = true
		logger.Debug(ctx, "Serving advisory decision from cache", "symbol", req.Symbol, "strategy", strategy)
		return adv
	}

	adv := a.ask(ctx, req)
	if ctx.Err() == nil {
		a.cache.Set(req.Symbol, strategy, adv)
	}
	return adv
}

func (a *Advisor) ask(ctx context.Context, req types.AdviceRequest) types.Advice {
	prompt := BuildPrompt(req)

	var lastErr error
	if len(a.cfg.Models) == 0 {
		lastErr = ErrNoModels
	}
	for i, model := range a.cfg.Models {
		text, err := a.tryModel(ctx, model, prompt)
		if err == nil {
			d, outcome := ParseDecision(text)
			d.Model = model
			if outcome != types.OutcomeOK {
				logger.Warn(ctx, "Advisory response needed rescue",
					"symbol", req.Symbol, "model", model, "outcome", outcome)
			}
			return types.Advice{Decision: d, Outcome: outcome}
		}

		lastErr = err
		if fatal(err) || ctx.Err() != nil {
			break
		}
		if i+1 < len(a.cfg.Models) {
			logger.Warn(ctx, "Advisory model exhausted, falling back",
				"symbol", req.Symbol, "model", model, "next_model", a.cfg.Models[i+1], "error", err)
		}
	}

	logger.ErrorWithErr(ctx, "Advisory call degraded to neutral hold", lastErr, "symbol", req.Symbol)
	return types.Advice{
		Decision: types.NeutralDecision(diagnostic(lastErr)),
		Outcome:  types.OutcomeDegraded,
	}
}

// tryModel runs the retry loop against a single model.
func (a *Advisor) tryModel(ctx context.Context, model, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < a.cfg.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
		text, err := a.completer.Complete(callCtx, types.CompletionRequest{
			Model:           model,
			Prompt:          prompt,
			Temperature:     a.cfg.Temperature,
			MaxOutputTokens: a.cfg.MaxOutputTokens,
		})
		cancel()
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			return "", err
		}
		if attempt == a.cfg.MaxAttempts-1 {
			break
		}

		wait := a.cfg.RetryDelay
		if se, ok := api.AsStatusError(err); ok && se.RateLimited() {
			wait = a.cfg.RateLimitBase + time.Duration(attempt)*a.cfg.RateLimitStep
			if se.RetryAfter > wait {
				wait = se.RetryAfter
			}
		}
		logger.Warn(ctx, "Advisory call failed, retrying",
			"model", model, "attempt", attempt+1, "max_attempts", a.cfg.MaxAttempts, "wait", wait.String(), "error", err)
		if err := a.sleep(ctx, wait); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("model %s: %d attempts failed: %w", model, a.cfg.MaxAttempts, lastErr)
}

// retryable reports whether the same model may answer on a later attempt.
// Auth failures and unknown models never will; every other failure gets the
// fixed retry delay, or the rate-limit backoff for 429.
func retryable(err error) bool {
	if errors.Is(err, ErrMissingAPIKey) || errors.Is(err, context.Canceled) {
		return false
	}
	if se, ok := api.AsStatusError(err); ok {
		switch se.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return false
		}
	}
	return true
}

// fatal errors stop the model fallback chain: no other model can fix them.
func fatal(err error) bool {
	if errors.Is(err, ErrMissingAPIKey) {
		return true
	}
	if se, ok := api.AsStatusError(err); ok {
		return se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden
	}
	return false
}

const diagnosticRunes = 80

func diagnostic(err error) string {
	switch {
	case err == nil:
		return "advisory unavailable"
	case errors.Is(err, ErrMissingAPIKey):
		return "advisory unavailable: missing API key"
	case errors.Is(err, context.DeadlineExceeded):
		return "advisory unavailable: timeout"
	}
	if se, ok := api.AsStatusError(err); ok {
		return fmt.Sprintf("advisory unavailable: provider status %d", se.StatusCode)
	}
	msg := err.Error()
	if utf8.RuneCountInString(msg) > diagnosticRunes {
		msg = string([]rune(msg)[:diagnosticRunes])
	}
	return "advisory unavailable: " + msg
}
