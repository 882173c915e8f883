package compass

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RetryPolicy configures the backoff behaviour for transient upstream
// failures. Shared read-only by every outbound call.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the backoff before the first retry; each subsequent
	// retry doubles it up to MaxDelay.
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration

	// Jitter adds a uniform random fraction of the computed delay in
	// [0, Jitter). Zero disables jitter.
	Jitter float64
}

// DefaultRetryPolicy matches the vendor guidance: three attempts with a
// half-second initial backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      0.5,
	}
}

// delay computes the backoff before retry number retry (1-based):
// min(MaxDelay, BaseDelay·2^(retry−1)) plus jitter.
func (p RetryPolicy) delay(retry int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		d += time.Duration(p.Jitter * rand.Float64() * float64(d))
	}
	return d
}

// retryable reports whether an HTTP status is worth another attempt.
// Transient: 429 and 5xx. Everything else ≥ 300 is terminal.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// Hooks are optional observability callbacks. All fields may be nil.
type Hooks struct {
	// OnAttempt fires once per outbound HTTP attempt. status is 0 when the
	// attempt failed at the transport layer.
	OnAttempt func(status int, d time.Duration)

	// OnRetry fires before each backoff sleep.
	OnRetry func()

	// OnTokenRefresh fires after each authentication handshake.
	OnTokenRefresh func(success bool)
}

// transport executes HTTP requests against Compass with bounded retries.
// It recovers transient failures locally; terminal failures propagate
// immediately as *APIError. One network call per attempt, no caching.
type transport struct {
	hc      *http.Client
	policy  RetryPolicy
	limiter *rate.Limiter
	logger  *zap.Logger
	hooks   Hooks
}

// do runs build+execute up to policy.MaxAttempts times. build is called per
// attempt so request bodies are re-created rather than re-read. Returns the
// status and body of the first conclusive response.
func (t *transport) do(ctx context.Context, build func() (*http.Request, error)) (int, []byte, error) {
	var lastErr error

	for attempt := 1; attempt <= t.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if t.hooks.OnRetry != nil {
				t.hooks.OnRetry()
			}
			if err := sleepCtx(ctx, t.policy.delay(attempt-1)); err != nil {
				return 0, nil, err
			}
		}
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return 0, nil, err
			}
		}

		req, err := build()
		if err != nil {
			return 0, nil, err
		}

		start := time.Now()
		resp, err := t.hc.Do(req)
		if err != nil {
			if t.hooks.OnAttempt != nil {
				t.hooks.OnAttempt(0, time.Since(start))
			}
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			// Timeouts, resets, refused connections: transient.
			lastErr = err
			t.logger.Warn("compass request failed",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if t.hooks.OnAttempt != nil {
			t.hooks.OnAttempt(resp.StatusCode, time.Since(start))
		}
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if retryable(resp.StatusCode) {
			lastErr = &APIError{Status: resp.StatusCode, Body: excerpt(body)}
			t.logger.Warn("compass returned retryable status",
				zap.Int("attempt", attempt),
				zap.Int("status", resp.StatusCode),
			)
			continue
		}
		if resp.StatusCode >= 300 {
			return resp.StatusCode, body, &APIError{Status: resp.StatusCode, Body: excerpt(body)}
		}
		return resp.StatusCode, body, nil
	}

	return 0, nil, &RetryExhaustedError{Attempts: t.policy.MaxAttempts, Last: lastErr}
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
