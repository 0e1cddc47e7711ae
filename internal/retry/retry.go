// Package retry guards fallible operations with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"tunesmith/internal/config"
	"tunesmith/internal/logging"
	"tunesmith/internal/services"
)

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Attempt describes the call currently being made.
type Attempt struct {
	Number  int
	Elapsed time.Duration
	LastErr error
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy is safe for concurrent use.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	jitter      float64
	retryable   func(error) bool
	logger      *slog.Logger
	sleep       Sleeper
	now         func() time.Time

	randMu sync.Mutex
	rand   *rand.Rand
}

// Option customizes a Policy.
type Option func(*Policy)

// WithJitter spreads each delay by up to ±fraction of its length. The seed
// makes the sequence reproducible.
func WithJitter(fraction float64, seed uint64) Option {
	return func(p *Policy) {
		p.jitter = fraction
		p.rand = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithMaxDelay caps a single backoff delay.
func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) { p.maxDelay = d }
}

// WithRetryable replaces services.IsRetryable as the retry predicate.
func WithRetryable(fn func(error) bool) Option {
	return func(p *Policy) {
		if fn != nil {
			p.retryable = fn
		}
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) { p.logger = logging.NewComponentLogger(logger, "retry") }
}

// WithSleeper overrides how backoff sleeps are performed (useful for tests).
func WithSleeper(s Sleeper) Option {
	return func(p *Policy) {
		if s != nil {
			p.sleep = s
		}
	}
}

// New builds a policy making at most maxAttempts calls, waiting
// baseDelay*2^(n-2) before attempt n.
func New(maxAttempts int, baseDelay time.Duration, opts ...Option) *Policy {
	p := &Policy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		retryable:   services.IsRetryable,
		logger:      logging.NewComponentLogger(nil, "retry"),
		sleep:       contextSleep,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = 1
	}
	if p.baseDelay < 0 {
		p.baseDelay = 0
	}
	if p.jitter > 0 && p.rand == nil {
		p.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return p
}

// FromConfig builds the shared policy from the [retry] section.
func FromConfig(cfg config.Retry, logger *slog.Logger, opts ...Option) *Policy {
	base := []Option{WithLogger(logger)}
	if cfg.JitterFraction > 0 {
		base = append(base, WithJitter(cfg.JitterFraction, uint64(time.Now().UnixNano())))
	}
	return New(cfg.MaxAttempts, cfg.BaseDelay(), append(base, opts...)...)
}

// MaxAttempts reports the configured attempt bound.
func (p *Policy) MaxAttempts() int { return p.maxAttempts }

// Delay returns the wait before the given attempt number (2 or later).
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 2 {
		return 0
	}
	delay := p.baseDelay
	for i := 2; i < attempt; i++ {
		delay *= 2
		if p.maxDelay > 0 && delay >= p.maxDelay {
			delay = p.maxDelay
			break
		}
	}
	if p.jitter > 0 && p.rand != nil && delay > 0 {
		p.randMu.Lock()
		r := p.rand.Float64()
		p.randMu.Unlock()
		delay = time.Duration(float64(delay) * (1 + p.jitter*(2*r-1)))
	}
	if p.maxDelay > 0 && delay > p.maxDelay {
		delay = p.maxDelay
	}
	return delay
}

// Execute runs fn under the policy.
func (p *Policy) Execute(ctx context.Context, op string, fn func(ctx context.Context, a Attempt) error) error {
	_, err := Do(ctx, p, op, func(ctx context.Context, a Attempt) (struct{}, error) {
		return struct{}{}, fn(ctx, a)
	})
	return err
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempt bound is reached.
func Do[T any](ctx context.Context, p *Policy, op string, fn func(ctx context.Context, a Attempt) (T, error)) (T, error) {
	var zero T
	if p == nil {
		p = New(1, 0)
	}
	start := p.now()
	var lastErr error
	for n := 1; n <= p.maxAttempts; n++ {
		if err := p.interrupted(ctx, op); err != nil {
			return zero, joinLast(err, lastErr)
		}
		if n > 1 {
			delay := p.Delay(n)
			logging.WarnWithContext(logging.WithContext(ctx, p.logger), "retrying operation", "retry_scheduled",
				logging.String("operation", op),
				logging.Int("attempt", n),
				logging.Int("max_attempts", p.maxAttempts),
				logging.Duration("delay", delay),
				logging.String("error_summary", summarize(lastErr)),
			)
			if err := p.sleep(ctx, delay); err != nil {
				return zero, joinLast(services.Wrap(services.ErrCancelled, "retry", op, "cancelled during backoff", err), lastErr)
			}
			if err := p.interrupted(ctx, op); err != nil {
				return zero, joinLast(err, lastErr)
			}
		}
		result, err := fn(ctx, Attempt{Number: n, Elapsed: p.now().Sub(start), LastErr: lastErr})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !p.retryable(err) {
			return zero, err
		}
	}
	return zero, fmt.Errorf("%s: %w after %d attempts: %w", op, ErrExhausted, p.maxAttempts, lastErr)
}

func (p *Policy) interrupted(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrCancelled, "retry", op, "context done", err)
	}
	return nil
}

func joinLast(err, last error) error {
	if last == nil {
		return err
	}
	return fmt.Errorf("%w (last error: %v)", err, last)
}

func summarize(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > 160 {
		msg = msg[:157] + "..."
	}
	return msg
}

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
