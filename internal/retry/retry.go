// Package retry implements the backoff policy shared by all pipeline
// stages. Rate-limit failures get a longer, slowly growing delay than
// ordinary transient failures so quota windows have time to refill.
package retry

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	// defaultAttempts is the default number of retries after the first
	// attempt.
	defaultAttempts = 3

	// defaultInitialDelay is the wait before the first retry of a
	// non-rate-limited failure.
	defaultInitialDelay = 2000 * time.Millisecond

	// rateLimitBaseDelay is the minimum wait after a rate-limited failure.
	rateLimitBaseDelay = 5000 * time.Millisecond

	// rateLimitStepDelay is added to the base for every retry already
	// consumed, so consecutive quota hits back off further each time.
	rateLimitStepDelay = 3000 * time.Millisecond

	// defaultMaxElapsed caps total time spent inside one Do call,
	// including waits. Zero on a Policy means no cap.
	defaultMaxElapsed = 2 * time.Minute
)

// statusCoder is implemented by errors that carry an HTTP status code.
type statusCoder interface {
	HTTPStatus() int
}

// Policy controls how an operation is retried.
type Policy struct {
	// Attempts is the number of retries after the first attempt. Zero
	// means the operation runs exactly once.
	Attempts int

	// InitialDelay is the wait before the first retry of an ordinary
	// failure. Each round multiplies the next wait by 1.5.
	InitialDelay time.Duration

	// MaxElapsed stops retrying once the total time spent exceeds it.
	// Zero disables the cap.
	MaxElapsed time.Duration

	// IsRateLimit classifies an error as a quota/rate-limit failure. Nil
	// means IsRateLimitError.
	IsRateLimit func(error) bool

	// OnRetry, if set, is called with the failed attempt's error just
	// before each retry wait. Used for retry accounting.
	OnRetry func(error)
}

// Default returns the policy used by the pipeline stages.
func Default() Policy {
	return Policy{
		Attempts:     defaultAttempts,
		InitialDelay: defaultInitialDelay,
		MaxElapsed:   defaultMaxElapsed,
	}
}

// IsRateLimitError reports whether err looks like a quota or rate-limit
// failure: an HTTP 429 status, or a message mentioning "429", "quota", or
// "RESOURCE_EXHAUSTED".
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var sc statusCoder
	if errors.As(err, &sc) && sc.HTTPStatus() == 429 {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED")
}

// backoff returns the wait before the next retry. Rate-limited failures
// ignore the exponential delay and use the quota schedule instead, which
// grows with the number of retries already consumed.
func (p Policy) backoff(rateLimited bool, consumed int, delay time.Duration) time.Duration {
	if rateLimited {
		return rateLimitBaseDelay + time.Duration(consumed)*rateLimitStepDelay
	}
	return delay
}

// Do runs op under the policy. The first failure starts the retry loop:
// rate-limited failures wait rateLimitBaseDelay plus rateLimitStepDelay
// per retry already consumed, other failures wait the current delay, and
// either way the next round's delay is the waited duration times 1.5.
// The final error is returned unwrapped. Context cancellation during a
// wait returns ctx.Err.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T

	isRateLimit := p.IsRateLimit
	if isRateLimit == nil {
		isRateLimit = IsRateLimitError
	}

	remaining := p.Attempts
	delay := p.InitialDelay
	started := time.Now()

	for {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if remaining <= 0 {
			return zero, err
		}
		if p.MaxElapsed > 0 && time.Since(started) >= p.MaxElapsed {
			return zero, err
		}

		wait := p.backoff(isRateLimit(err), p.Attempts-remaining, delay)

		if p.OnRetry != nil {
			p.OnRetry(err)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}

		remaining--
		delay = wait + wait/2
	}
}
