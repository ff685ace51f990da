package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"golang.org/x/time/rate"

	"NewsRadar/internal/ports"
)

// ErrNoProviders is returned by a chain without any provider.
var ErrNoProviders = errors.New("no llm providers configured")

// ExhaustedError aggregates the failures of every provider in a chain.
type ExhaustedError struct {
	Failures []ProviderFailure
}

// ProviderFailure is one provider's error inside an ExhaustedError.
type ProviderFailure struct {
	Provider string
	Err      error
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Provider+": "+f.Err.Error())
	}
	return "all llm providers failed: " + strings.Join(parts, "; ")
}

func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// ProviderRecorder receives per-provider outcomes for metrics.
type ProviderRecorder interface {
	ObserveProvider(provider, outcome string)
}

// Member is one provider with its own call timeout.
type Member struct {
	Provider ports.LLMProvider
	Timeout  time.Duration
}

// ChainOptions tunes a Chain.
type ChainOptions struct {
	// RequestsPerMinute throttles Complete calls; zero disables throttling.
	RequestsPerMinute int
	// BreakerFailures opens a provider's circuit after that many failures out
	// of the last BreakerWindow calls.
	BreakerFailures uint
	BreakerWindow   uint
	BreakerDelay    time.Duration
	Metrics         ProviderRecorder
	Logger          *slog.Logger
}

type link struct {
	provider ports.LLMProvider
	timeout  time.Duration
	breaker  circuitbreaker.CircuitBreaker[ports.Completion]
}

// Chain tries providers strictly in order and returns the first success.
type Chain struct {
	links   []link
	limiter *rate.Limiter
	metrics ProviderRecorder
	logger  *slog.Logger
}

var _ ports.LLMProvider = (*Chain)(nil)

// NewChain builds an ordered provider chain.
func NewChain(members []Member, opts ChainOptions) *Chain {
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 3
	}
	if opts.BreakerWindow < opts.BreakerFailures {
		opts.BreakerWindow = opts.BreakerFailures
	}
	if opts.BreakerDelay == 0 {
		opts.BreakerDelay = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	links := make([]link, 0, len(members))
	for _, m := range members {
		if m.Provider == nil {
			continue
		}
		name := m.Provider.Name()
		breaker := circuitbreaker.NewBuilder[ports.Completion]().
			WithFailureThresholdRatio(opts.BreakerFailures, opts.BreakerWindow).
			WithDelay(opts.BreakerDelay).
			WithSuccessThreshold(1).
			OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
				logger.Warn("llm provider circuit changed", "provider", name, "from", event.OldState, "to", event.NewState)
			}).
			Build()
		links = append(links, link{provider: m.Provider, timeout: m.Timeout, breaker: breaker})
	}

	var limiter *rate.Limiter
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60), 1)
	}

	return &Chain{links: links, limiter: limiter, metrics: opts.Metrics, logger: logger}
}

// Name lists the member providers.
func (c *Chain) Name() string {
	names := make([]string, 0, len(c.links))
	for _, l := range c.links {
		names = append(names, l.provider.Name())
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Len returns the number of providers.
func (c *Chain) Len() int { return len(c.links) }

// Complete runs req against each provider in order. A failure, timeout or open
// circuit advances to the next provider; when all fail an *ExhaustedError is
// returned.
func (c *Chain) Complete(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
	if len(c.links) == 0 {
		return ports.Completion{}, ErrNoProviders
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return ports.Completion{}, fmt.Errorf("llm rate limit: %w", err)
		}
	}

	exhausted := &ExhaustedError{}
	for _, l := range c.links {
		if err := ctx.Err(); err != nil {
			exhausted.Failures = append(exhausted.Failures, ProviderFailure{Provider: l.provider.Name(), Err: err})
			break
		}

		out, err := c.call(ctx, l, req)
		if err == nil {
			c.observe(l.provider.Name(), "success")
			return out, nil
		}

		outcome := "error"
		if errors.Is(err, circuitbreaker.ErrOpen) {
			outcome = "circuit_open"
		}
		c.observe(l.provider.Name(), outcome)
		c.logger.Warn("llm provider failed, trying next", "provider", l.provider.Name(), "error", err)
		exhausted.Failures = append(exhausted.Failures, ProviderFailure{Provider: l.provider.Name(), Err: err})
	}

	c.logger.Warn("llm providers exhausted", "providers", len(c.links))
	return ports.Completion{}, exhausted
}

func (c *Chain) call(ctx context.Context, l link, req ports.CompletionRequest) (ports.Completion, error) {
	return failsafe.With(l.breaker).Get(func() (ports.Completion, error) {
		callCtx := ctx
		if l.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, l.timeout)
			defer cancel()
		}
		out, err := l.provider.Complete(callCtx, req)
		if err != nil {
			return ports.Completion{}, err
		}
		if out.Provider == "" {
			out.Provider = l.provider.Name()
		}
		return out, nil
	})
}

func (c *Chain) observe(provider, outcome string) {
	if c.metrics != nil {
		c.metrics.ObserveProvider(provider, outcome)
	}
}
