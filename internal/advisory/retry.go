package advisory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MinoriAI/internal/entity"

	"github.com/sirupsen/logrus"
)

const (
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 500 * time.Millisecond
	defaultRetryMaxDelay  = 5 * time.Second
)

// Retrying retries a failing Lookup with exponential backoff.
type Retrying struct {
	inner     Lookup
	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
	sleeper   func(ctx context.Context, d time.Duration) error
	log       *logrus.Logger
}

type RetryOption func(*Retrying)

func WithRetryAttempts(n int) RetryOption {
	return func(r *Retrying) {
		r.attempts = n
	}
}

func WithRetryBackoff(base, max time.Duration) RetryOption {
	return func(r *Retrying) {
		r.baseDelay = base
		r.maxDelay = max
	}
}

// WithSleeper overrides how retry waits are performed.
func WithSleeper(sleeper func(ctx context.Context, d time.Duration) error) RetryOption {
	return func(r *Retrying) {
		if sleeper != nil {
			r.sleeper = sleeper
		}
	}
}

func NewRetrying(inner Lookup, log *logrus.Logger, opts ...RetryOption) *Retrying {
	r := &Retrying{
		inner:     inner,
		attempts:  defaultRetryAttempts,
		baseDelay: defaultRetryBaseDelay,
		maxDelay:  defaultRetryMaxDelay,
		sleeper:   sleepContext,
		log:       log,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.attempts <= 0 {
		r.attempts = 1
	}
	return r
}

func (r *Retrying) Fetch(ctx context.Context, crop entity.Crop, disease string) (Answer, error) {
	var lastErr error

	for attempt := 1; attempt <= r.attempts; attempt++ {
		answer, err := r.inner.Fetch(ctx, crop, disease)
		if err == nil {
			return answer, nil
		}
		lastErr = err

		if attempt == r.attempts || ctx.Err() != nil ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}

		delay := r.backoff(attempt)
		r.log.WithFields(logrus.Fields{
			"crop":     crop,
			"disease":  disease,
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
			"error":    err.Error(),
		}).Warn("Advisory lookup failed, retrying")

		if err := r.sleeper(ctx, delay); err != nil {
			return Answer{}, err
		}
	}

	return Answer{}, fmt.Errorf("advisory lookup failed after %d attempts: %w", r.attempts, lastErr)
}

// backoff returns the wait after the given 1-based attempt: base, 2*base,
// 4*base, capped at maxDelay.
func (r *Retrying) backoff(attempt int) time.Duration {
	if r.baseDelay <= 0 {
		return 0
	}
	delay := r.baseDelay
	for i := 1; i < attempt; i++ {
		if r.maxDelay > 0 && delay > r.maxDelay/2 {
			return r.maxDelay
		}
		delay *= 2
	}
	if r.maxDelay > 0 && delay > r.maxDelay {
		return r.maxDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
