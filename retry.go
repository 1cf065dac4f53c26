package rowfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// BadStatusError is a well-formed non-2xx response from the completion
// endpoint. Never retried: the server understood the request and rejected
// it, so repeating it unchanged would only burn quota.
type BadStatusError struct {
	StatusCode int
	Body       string
}

func (e *BadStatusError) Error() string {
	return fmt.Sprintf("completion endpoint returned status %d: %s", e.StatusCode, preview(e.Body, 200))
}

// ErrMalformedResponse marks a 2xx response whose body does not carry a
// completion. Not retried.
var ErrMalformedResponse = errors.New("malformed completion response")

// retryableError reports whether a failed call may be attempted again.
// Only transport-level failures and per-call timeouts qualify.
func retryableError(err error) bool {
	var bad *BadStatusError
	if errors.As(err, &bad) {
		return false
	}
	if errors.Is(err, ErrMalformedResponse) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// callWithRetry performs one completion call with the configured retry
// policy: up to maxRetries attempts, each under its own timeout, with a
// linearly increasing pause between attempts (delay, 2*delay, ...).
func callWithRetry(
	ctx context.Context,
	p Provider,
	req Request,
	maxRetries int,
	delay time.Duration,
	timeout time.Duration,
	log *slog.Logger,
) (string, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		callCtx := ctx
		cancel := context.CancelFunc(func() {})
		if timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		raw, err := p.Complete(callCtx, req)
		cancel()
		if err == nil {
			return raw, nil
		}
		lastErr = err

		if !retryableError(err) {
			log.Error("completion request rejected", "error", err)
			return "", err
		}
		if ctx.Err() != nil {
			return "", err
		}
		if attempt == maxRetries {
			break
		}

		pause := delay * time.Duration(attempt)
		log.Warn("completion call failed, retrying", "attempt", attempt, "max", maxRetries, "delay", pause, "error", err)
		select {
		case <-time.After(pause):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}
