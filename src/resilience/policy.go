// Package resilience wraps calls to unreliable dependencies with retries, a
// circuit breaker and an optional client-side rate limit.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrCircuitOpen is returned without calling the operation while the breaker
// is open or saturated in half-open state.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config holds the retry, breaker and rate-limit settings.
type Config struct {
	Name string

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// FailureThreshold is the number of consecutive transient failures that
	// opens the breaker. Zero disables the breaker.
	FailureThreshold int
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration

	// RequestsPerMinute enables client-side rate limiting when positive.
	RequestsPerMinute int
	BurstSize         int

	// Retryable decides whether an error is transient. Nil treats every
	// error as transient.
	Retryable func(error) bool

	Logger *slog.Logger
}

// DefaultConfig mirrors the upstream policy: three retries with 2s, 4s, 8s
// waits and a breaker that opens for 30s after five consecutive failures.
func DefaultConfig() Config {
	return Config{
		Name:             "upstream",
		MaxRetries:       3,
		InitialDelay:     2 * time.Second,
		MaxDelay:         30 * time.Second,
		Multiplier:       2,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// Policy executes operations under the configured retry, breaker and rate
// limit. It is safe for concurrent use.
type Policy struct {
	cfg     Config
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New builds a Policy from cfg.
func New(cfg Config) *Policy {
	if cfg.Retryable == nil {
		cfg.Retryable = func(error) bool { return true }
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Policy{
		cfg:    cfg,
		logger: logger.With("component", "resilience", "policy", cfg.Name),
	}

	if cfg.FailureThreshold > 0 {
		threshold := uint32(cfg.FailureThreshold)
		p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: 1,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			// Non-transient failures (bad request, auth) say nothing about
			// upstream health.
			IsSuccessful: func(err error) bool {
				return err == nil || !cfg.Retryable(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				p.logger.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
			},
		})
	}

	if cfg.RequestsPerMinute > 0 {
		burst := cfg.BurstSize
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), burst)
	}

	return p
}

// State returns the breaker state: "closed", "half-open" or "open". Policies
// without a breaker always report "closed".
func (p *Policy) State() string {
	if p.breaker == nil {
		return gobreaker.StateClosed.String()
	}
	return p.breaker.State().String()
}

// Execute runs op until it succeeds, fails permanently, the retry budget is
// spent or ctx is done.
func (p *Policy) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		err := p.call(ctx, op)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrCircuitOpen) || ctx.Err() != nil || !p.cfg.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		p.logger.Debug("attempt failed, retrying", "attempt", attempt, "wait", wait, "error", err)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(p.newBackOff(), ctx), notify)
	if err != nil {
		p.logger.Debug("operation failed", "attempts", attempt, "error", err)
	}
	return err
}

func (p *Policy) call(ctx context.Context, op func(ctx context.Context) error) error {
	if p.breaker == nil {
		return op(ctx)
	}
	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, op(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

func (p *Policy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.InitialDelay
	b.Multiplier = p.cfg.Multiplier
	b.RandomizationFactor = 0
	if p.cfg.MaxDelay > 0 {
		b.MaxInterval = p.cfg.MaxDelay
	}
	b.MaxElapsedTime = 0
	b.Reset()
	if p.cfg.MaxRetries <= 0 {
		return &backoff.StopBackOff{}
	}
	return backoff.WithMaxRetries(b, uint64(p.cfg.MaxRetries))
}
