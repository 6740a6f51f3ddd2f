package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// MaxJitter bounds the random fraction added to each backoff delay.
const MaxJitter = 0.3

// RetryPolicy configures Retry. Zero values fall back to DefaultRetryPolicy.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// IsRetryable classifies failures. Nil treats every error as retryable.
	IsRetryable func(error) bool
	// OnRetry runs before each backoff sleep.
	OnRetry func(attempt int, err error, delay time.Duration)

	// test hooks
	sleep  func(context.Context, time.Duration) error
	jitter func() float64
}

// DefaultRetryPolicy matches the payment gateway defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = def.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.sleep == nil {
		p.sleep = sleepContext
	}
	if p.jitter == nil {
		p.jitter = func() float64 { return rand.Float64() * MaxJitter }
	}
	return p
}

// BackoffDelay returns the sleep after the given failed attempt (1-based):
// min(MaxDelay, InitialDelay * Multiplier^(attempt-1) * (1+jitter)).
func BackoffDelay(p RetryPolicy, attempt int, jitter float64) time.Duration {
	p = p.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	base := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	delay := base * (1 + jitter)
	if delay >= float64(p.MaxDelay) || math.IsInf(delay, 1) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Retry runs op until it succeeds, returns a non-retryable error, or the
// attempts run out. The last error is returned unchanged.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	p := policy.withDefaults()

	var zero T
	for attempt := 1; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if attempt >= p.MaxAttempts || (p.IsRetryable != nil && !p.IsRetryable(err)) {
			return zero, err
		}

		delay := BackoffDelay(p, attempt, p.jitter())
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			return zero, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
