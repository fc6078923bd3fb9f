package backend

import (
	"context"
	"time"
)

// Retrying retries transient failures of the wrapped Generator with
// exponential backoff: BaseDelay, 2*BaseDelay, 4*BaseDelay...
type Retrying struct {
	Inner     Generator
	Attempts  int
	BaseDelay time.Duration
	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, max int, err error)

	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetrying(inner Generator, attempts int, baseDelay time.Duration) *Retrying {
	return &Retrying{Inner: inner, Attempts: attempts, BaseDelay: baseDelay}
}

func (r *Retrying) Name() string {
	return r.Inner.Name()
}

func (r *Retrying) GenerateText(ctx context.Context, prompt string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	sleep := r.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		text, err := r.Inner.GenerateText(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !IsTransient(err) || attempt == attempts {
			break
		}
		if r.OnRetry != nil {
			r.OnRetry(attempt, attempts, err)
		}
		if err := sleep(ctx, backoff(r.BaseDelay, attempt)); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	return base << (attempt - 1)
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
