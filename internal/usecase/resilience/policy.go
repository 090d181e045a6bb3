// Package resilience guards provider calls with a rate limiter, a circuit
// breaker, per-attempt timeouts and bounded exponential retries.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/trialfit/internal/domain"
	"github.com/kailas-cloud/trialfit/internal/metrics"
)

// ErrCircuitOpen is returned without calling the provider while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Config tunes a policy. Zero values fall back to defaults.
type Config struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	AttemptTimeout  time.Duration
	RateLimit       float64 // requests per second, 0 disables limiting
	Burst           int
	BreakerFailures uint32 // consecutive failures that open the breaker
	BreakerCooldown time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 500 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 10 * time.Second
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
}

// Policy is safe for concurrent use. One policy per provider.
type Policy struct {
	name    string
	cfg     Config
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// New creates a policy named after the provider it guards.
func New(name string, cfg Config, logger *zap.Logger) *Policy {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	p := &Policy{
		name:    name,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		logger:  logger.With(zap.String("policy", name)),
	}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			// caller cancellation and client errors say nothing about provider health
			return !retryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.ProviderBreakerState.WithLabelValues(name).Set(float64(to))
			p.logger.Warn("Circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return p
}

// Name returns the policy name.
func (p *Policy) Name() string { return p.name }

// Do runs op under the policy. Retryable provider errors and attempt
// timeouts are retried with exponential backoff up to MaxAttempts; other
// errors and an open breaker stop immediately. When all attempts fail the
// error matches domain.ErrRetriesExhausted and still unwraps to the last
// provider error. Expiry of ctx itself is returned as the context error.
func Do[T any](ctx context.Context, p *Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := 0

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.InitialInterval
	b.MaxInterval = p.cfg.MaxInterval

	res, err := backoff.Retry(ctx, func() (T, error) {
		attempts++
		if err := p.limiter.Wait(ctx); err != nil {
			return zero, backoff.Permanent(fmt.Errorf("%s: rate limiter: %w", p.name, ctxErr(ctx, err)))
		}

		out, err := p.breaker.Execute(func() (interface{}, error) {
			actx, cancel := p.attemptContext(ctx)
			defer cancel()
			return op(actx)
		})
		if err == nil {
			v, _ := out.(T)
			return v, nil
		}

		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return zero, backoff.Permanent(fmt.Errorf("%s: %w: %w", p.name, ErrCircuitOpen, err))
		case ctx.Err() != nil:
			return zero, backoff.Permanent(ctxErr(ctx, err))
		case !retryable(err):
			return zero, backoff.Permanent(err)
		}
		return zero, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.ProviderRetriesTotal.WithLabelValues(p.name).Inc()
			p.logger.Warn("Retrying provider call",
				zap.Int("attempt", attempts),
				zap.Duration("backoff", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return zero, ctxErr(ctx, err)
		}
		if attempts >= p.cfg.MaxAttempts && retryable(err) {
			return zero, fmt.Errorf("%s: %w after %d attempts: %w", p.name, domain.ErrRetriesExhausted, attempts, err)
		}
		return zero, err
	}
	return res, nil
}

func (p *Policy) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.AttemptTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.cfg.AttemptTimeout)
}

// retryable is true for transient provider errors and for an attempt that
// ran out of its own timeout while the caller still had budget.
func retryable(err error) bool {
	return domain.IsRetryable(err) || errors.Is(err, context.DeadlineExceeded)
}

// ctxErr keeps the context error visible to errors.Is alongside the cause.
func ctxErr(ctx context.Context, err error) error {
	cerr := ctx.Err()
	if cerr == nil || errors.Is(err, cerr) {
		return err
	}
	return fmt.Errorf("%w: %w", cerr, err)
}
