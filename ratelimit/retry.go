package ratelimit

import (
	"context"
	"time"

	"github.com/vibe-flow/cmc/telemetry"
)

// Op is a unit of work that may fail with a rate-limit error. It should
// return a non-nil detection-relevant error; Handler classifies it via
// Detect against the error's string representation.
type Op func(ctx context.Context) (any, error)

// OnRetry is called after each rate-limit-classified failure that will be
// retried, before sleeping. It is not called for non-rate-limit errors or
// after the final attempt.
type OnRetry func(attempt int, delay time.Duration, err error)

// Outcome is the typed, non-throwing result of ExecuteWithRetry.
type Outcome struct {
	Success    bool
	Result     any
	Err        error
	Attempts   int
	TotalDelay time.Duration
}

// Handler executes operations with rate-limit-aware retry.
type Handler struct {
	backoff    BackoffConfig
	maxRetries int
}

// NewHandler builds a Handler with the given backoff config and maximum
// number of retries (not counting the first attempt).
func NewHandler(cfg BackoffConfig, maxRetries int) *Handler {
	return &Handler{backoff: cfg, maxRetries: maxRetries}
}

// ExecuteWithRetry runs op, retrying on rate-limit-classified failures
// with backoff up to maxRetries. Non-rate-limit errors short-circuit
// immediately without retry.
func (h *Handler) ExecuteWithRetry(ctx context.Context, op Op, onRetry OnRetry) Outcome {
	ctx, span := telemetry.StartSpan(ctx, "ratelimit.execute_with_retry")
	defer span.End()

	var totalDelay time.Duration
	var lastErr error

	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return Outcome{Success: true, Result: result, Attempts: attempt + 1, TotalDelay: totalDelay}
		}
		lastErr = err

		detection := Detect(ErrorInput{Message: err.Error()})
		if !detection.IsRateLimit {
			span.RecordError(err)
			return Outcome{Success: false, Err: err, Attempts: attempt + 1, TotalDelay: totalDelay}
		}

		if attempt == h.maxRetries {
			break
		}

		retryAfter := time.Duration(detection.RetryAfterMS) * time.Millisecond
		delay := h.backoff.Delay(attempt, retryAfter)
		totalDelay += delay

		if onRetry != nil {
			onRetry(attempt+1, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Outcome{Success: false, Err: ctx.Err(), Attempts: attempt + 1, TotalDelay: totalDelay}
		case <-timer.C:
		}
	}

	span.RecordError(lastErr)
	return Outcome{Success: false, Err: lastErr, Attempts: h.maxRetries + 1, TotalDelay: totalDelay}
}
