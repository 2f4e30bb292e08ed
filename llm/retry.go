package llm

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxRetries is the retry cap when none is configured.
	DefaultMaxRetries = 3
	// DefaultBaseDelay seeds the exponential backoff schedule.
	DefaultBaseDelay = 1 * time.Second

	backoffMultiplier    = 2.0
	backoffRandomization = 0.25
	maxBackoffInterval   = 5 * time.Minute
)

// Retryer re-invokes a fallible operation with exponential backoff and
// jitter while the failure is classified retryable and attempts remain.
type Retryer struct {
	maxRetries int
	baseDelay  time.Duration
	logger     zerolog.Logger
	rng        *rand.Rand

	// sleep waits out a backoff delay; replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// RetryConfig configures a Retryer. Zero values get defaults.
type RetryConfig struct {
	// MaxRetries is the number of re-invocations after the first attempt,
	// so an operation runs at most MaxRetries+1 times.
	MaxRetries int

	// BaseDelay is the first retry delay before exponential growth.
	BaseDelay time.Duration

	Logger zerolog.Logger
}

// NewRetryer creates a Retryer from cfg.
func NewRetryer(cfg RetryConfig) *Retryer {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	return &Retryer{
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		logger:     cfg.Logger.With().Str("component", "retryer").Logger(),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:      sleepContext,
	}
}

// newSchedule builds the no-hint backoff schedule: baseDelay * 2^attempt
// with 25% jitter and no elapsed-time cutoff.
func (r *Retryer) newSchedule() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.baseDelay
	eb.Multiplier = backoffMultiplier
	eb.RandomizationFactor = backoffRandomization
	eb.MaxInterval = maxBackoffInterval
	eb.MaxElapsedTime = 0
	eb.Reset()
	return eb
}

// Do invokes op until it succeeds, fails with a non-retryable classified
// error, or exhausts the retry budget. After each retryable failure that
// is not the last attempt it waits the backoff delay, preferring an
// explicit retry-after hint carried by the error. The returned error is
// always a classified *Error; on exhaustion it is enriched with retry
// metadata. An op that panics is converted to a non-retryable
// UNKNOWN_ERROR and terminates the loop immediately.
func (r *Retryer) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	start := time.Now()
	schedule := r.newSchedule()

	var lastErr *Error
	attempts := 0
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		attempts++
		err := invoke(ctx, op)
		if err == nil {
			return nil
		}

		if panicErr, ok := err.(*panicError); ok {
			// Fail fast on programmer errors rather than classified,
			// expected failure modes.
			lastErr = NewError(ErrorCodeUnknown, panicErr.Error(), panicErr)
			break
		}

		lastErr = Classify(err)
		r.logger.Warn().
			Str("operation", name).
			Int("attempt", attempt+1).
			Int("max_attempts", r.maxRetries+1).
			Str("code", string(lastErr.Code)).
			Bool("retryable", lastErr.Retryable).
			Err(err).
			Msg("Operation attempt failed")

		if !lastErr.Retryable || attempt == r.maxRetries {
			break
		}

		delay := r.nextDelay(schedule, lastErr, attempt)
		r.logger.Info().
			Str("operation", name).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Retrying after delay")
		if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
			lastErr = Classify(sleepErr)
			break
		}
	}

	if lastErr == nil {
		// Not reachable with maxRetries >= 0, kept as a guard.
		lastErr = NewError(ErrorCodeUnknown, fmt.Sprintf("%s failed without error detail", name), nil)
	}
	lastErr.Retries = &RetryMetadata{
		Attempts:      attempts,
		TotalDuration: time.Since(start),
		LastErr:       lastErr.Cause,
	}
	return lastErr
}

// nextDelay computes the wait before the next attempt. Without a hint the
// configured schedule supplies baseDelay * 2^attempt with jitter; an
// explicit retry-after hint replaces the base while keeping the same
// exponential growth and jitter.
func (r *Retryer) nextDelay(schedule backoff.BackOff, apiErr *Error, attempt int) time.Duration {
	scheduled := schedule.NextBackOff()
	if scheduled == backoff.Stop {
		scheduled = r.baseDelay
	}
	if apiErr.RetryAfter == nil {
		return scheduled
	}
	delay := float64(*apiErr.RetryAfter)
	for i := 0; i < attempt; i++ {
		delay *= backoffMultiplier
	}
	jitter := 1 + (r.rng.Float64()*2-1)*backoffRandomization
	delay *= jitter
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// invoke runs op, converting a panic into a panicError so it can be
// distinguished from classified failures.
func invoke(ctx context.Context, op func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &panicError{value: rec}
		}
	}()
	return op(ctx)
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("unexpected panic in operation: %v", e.value)
}

// sleepContext waits for d or until ctx is cancelled.
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
