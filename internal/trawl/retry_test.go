package trawl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedFetcher struct {
	calls   int
	outcome func(attempt int) (Page, error)
}

func (f *scriptedFetcher) Fetch(_ context.Context, _ string) (Page, error) {
	f.calls++
	return f.outcome(f.calls)
}

func TestWithRetrySucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	inner := &scriptedFetcher{outcome: func(int) (Page, error) {
		return Page{StatusCode: 200, Body: []byte("ok")}, nil
	}}
	f := WithRetry(inner, 1, time.Millisecond, zap.NewNop())

	page, err := f.Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, 200, page.StatusCode)
	assert.Equal(t, 1, inner.calls)
}

func TestWithRetryRetriesOnceAfterError(t *testing.T) {
	t.Parallel()

	inner := &scriptedFetcher{outcome: func(attempt int) (Page, error) {
		if attempt == 1 {
			return Page{}, errors.New("connection reset")
		}
		return Page{StatusCode: 200}, nil
	}}
	f := WithRetry(inner, 1, time.Millisecond, zap.NewNop())

	page, err := f.Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, 200, page.StatusCode)
	assert.Equal(t, 2, inner.calls)
}

func TestWithRetryRetriesNonSuccessStatus(t *testing.T) {
	t.Parallel()

	inner := &scriptedFetcher{outcome: func(attempt int) (Page, error) {
		if attempt == 1 {
			return Page{StatusCode: 503}, nil
		}
		return Page{StatusCode: 200}, nil
	}}
	f := WithRetry(inner, 1, time.Millisecond, zap.NewNop())

	page, err := f.Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, 200, page.StatusCode)
	assert.Equal(t, 2, inner.calls)
}

func TestWithRetryReturnsFinalOutcome(t *testing.T) {
	t.Parallel()

	inner := &scriptedFetcher{outcome: func(int) (Page, error) {
		return Page{StatusCode: 404, Body: []byte("missing")}, nil
	}}
	f := WithRetry(inner, 1, time.Millisecond, zap.NewNop())

	page, err := f.Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, 404, page.StatusCode, "final non-success page is returned as-is")
	assert.Equal(t, 2, inner.calls)
}

func TestWithRetryBackoffDoubles(t *testing.T) {
	t.Parallel()

	var attempts []time.Time
	inner := &scriptedFetcher{outcome: func(attempt int) (Page, error) {
		attempts = append(attempts, time.Now())
		if attempt < 3 {
			return Page{StatusCode: 503}, nil
		}
		return Page{StatusCode: 200}, nil
	}}
	f := WithRetry(inner, 2, 60*time.Millisecond, zap.NewNop())

	page, err := f.Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, 200, page.StatusCode)
	require.Len(t, attempts, 3)

	firstWait := attempts[1].Sub(attempts[0])
	secondWait := attempts[2].Sub(attempts[1])
	assert.GreaterOrEqual(t, firstWait, 60*time.Millisecond)
	assert.GreaterOrEqual(t, secondWait, 120*time.Millisecond, "second backoff is double the first")
}

func TestWithRetryStopsWhenContextCanceled(t *testing.T) {
	t.Parallel()

	inner := &scriptedFetcher{outcome: func(int) (Page, error) {
		return Page{}, errors.New("unreachable")
	}}
	f := WithRetry(inner, 5, 50*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, "https://example.com")
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls, "no retries after cancellation")
}
