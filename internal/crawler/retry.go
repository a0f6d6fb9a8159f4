package crawler

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-harvester/internal/metrics"
)

// RetryPolicy bounds the attempts made for one locator.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Timeout     time.Duration
}

// DefaultRetryPolicy returns three attempts, a one second base delay, and a
// thirty second per-call timeout.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Timeout:     30 * time.Second,
	}
}

// Backoff returns the wait before the attempt following attempt (zero based):
// base * 2^attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 || p.BaseDelay <= 0 {
		return 0
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt)))
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// RetryingFetcher applies a RetryPolicy around a Transport.
type RetryingFetcher struct {
	transport Transport
	policy    RetryPolicy
	pauser    Pauser
	logger    *zap.Logger
}

// NewRetryingFetcher wraps transport. A nil pauser sleeps on a real timer.
func NewRetryingFetcher(transport Transport, policy RetryPolicy, pauser Pauser, logger *zap.Logger) *RetryingFetcher {
	if pauser == nil {
		pauser = TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingFetcher{
		transport: transport,
		policy:    policy,
		pauser:    pauser,
		logger:    logger,
	}
}

// Fetch returns the first successful response, or a *FetchFailure carrying
// the last error once every attempt has failed.
func (f *RetryingFetcher) Fetch(ctx context.Context, url string) (Content, error) {
	maxAttempts := f.policy.attempts()
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		content, err := f.transport.Fetch(ctx, url, f.policy.Timeout)
		if err == nil {
			metrics.ObserveFetch("success")
			return content, nil
		}
		lastErr = err
		metrics.ObserveFetch("error")
		f.logger.Warn("fetch attempt failed",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err),
		)
		if !retryable(ctx, err) {
			return Content{}, &FetchFailure{URL: url, Attempts: attempt + 1, Err: err}
		}
		if attempt == maxAttempts-1 {
			break
		}
		if perr := f.pauser.Pause(ctx, f.policy.Backoff(attempt)); perr != nil {
			return Content{}, &FetchFailure{URL: url, Attempts: attempt + 1, Err: perr}
		}
	}
	return Content{}, &FetchFailure{URL: url, Attempts: maxAttempts, Err: lastErr}
}

// retryable treats every transport error as transient unless the caller's
// context is finished.
func retryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
