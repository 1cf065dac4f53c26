package rowfill

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	fn func(ctx context.Context, req Request) (string, error)
}

func (s *stubProvider) Complete(ctx context.Context, req Request) (string, error) {
	return s.fn(ctx, req)
}

func TestRetryableError(t *testing.T) {
	assert.False(t, retryableError(&BadStatusError{StatusCode: 401}))
	assert.False(t, retryableError(ErrMalformedResponse))
	assert.False(t, retryableError(context.Canceled))
	assert.True(t, retryableError(errors.New("connection refused")))
	assert.True(t, retryableError(context.DeadlineExceeded))
}

func TestCallWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds on first attempt", func(t *testing.T) {
		calls := 0
		p := &stubProvider{fn: func(ctx context.Context, req Request) (string, error) {
			calls++
			return "done", nil
		}}
		out, err := callWithRetry(ctx, p, Request{}, 3, time.Millisecond, 0, testLogger())
		require.NoError(t, err)
		assert.Equal(t, "done", out)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries transport failures", func(t *testing.T) {
		calls := 0
		p := &stubProvider{fn: func(ctx context.Context, req Request) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("connection reset")
			}
			return "done", nil
		}}
		out, err := callWithRetry(ctx, p, Request{}, 3, time.Millisecond, 0, testLogger())
		require.NoError(t, err)
		assert.Equal(t, "done", out)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		p := &stubProvider{fn: func(ctx context.Context, req Request) (string, error) {
			calls++
			return "", errors.New("timeout")
		}}
		_, err := callWithRetry(ctx, p, Request{}, 3, time.Millisecond, 0, testLogger())
		require.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("bad status is not retried", func(t *testing.T) {
		calls := 0
		p := &stubProvider{fn: func(ctx context.Context, req Request) (string, error) {
			calls++
			return "", &BadStatusError{StatusCode: 429, Body: "rate limited"}
		}}
		_, err := callWithRetry(ctx, p, Request{}, 5, time.Millisecond, 0, testLogger())
		var bad *BadStatusError
		require.ErrorAs(t, err, &bad)
		assert.Equal(t, 429, bad.StatusCode)
		assert.Equal(t, 1, calls)
	})

	t.Run("malformed response is not retried", func(t *testing.T) {
		calls := 0
		p := &stubProvider{fn: func(ctx context.Context, req Request) (string, error) {
			calls++
			return "", ErrMalformedResponse
		}}
		_, err := callWithRetry(ctx, p, Request{}, 5, time.Millisecond, 0, testLogger())
		assert.ErrorIs(t, err, ErrMalformedResponse)
		assert.Equal(t, 1, calls)
	})

	t.Run("each attempt gets its own deadline", func(t *testing.T) {
		var deadlines []time.Time
		p := &stubProvider{fn: func(ctx context.Context, req Request) (string, error) {
			d, ok := ctx.Deadline()
			require.True(t, ok)
			deadlines = append(deadlines, d)
			if len(deadlines) < 2 {
				return "", errors.New("flaky")
			}
			return "done", nil
		}}
		_, err := callWithRetry(ctx, p, Request{}, 3, time.Millisecond, time.Minute, testLogger())
		require.NoError(t, err)
		require.Len(t, deadlines, 2)
		assert.True(t, deadlines[1].After(deadlines[0]))
	})

	t.Run("pauses grow linearly", func(t *testing.T) {
		const delay = 20 * time.Millisecond
		calls := 0
		p := &stubProvider{fn: func(ctx context.Context, req Request) (string, error) {
			calls++
			return "", errors.New("flaky")
		}}
		start := time.Now()
		_, err := callWithRetry(ctx, p, Request{}, 3, delay, 0, testLogger())
		require.Error(t, err)
		// Pauses of delay and 2*delay between three attempts.
		assert.GreaterOrEqual(t, time.Since(start), 3*delay)
	})

	t.Run("canceled context stops retries", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		calls := 0
		p := &stubProvider{fn: func(ctx context.Context, req Request) (string, error) {
			calls++
			cancel()
			return "", errors.New("flaky")
		}}
		_, err := callWithRetry(cctx, p, Request{}, 5, time.Millisecond, 0, testLogger())
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}
