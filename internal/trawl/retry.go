package trawl

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// retryingFetcher wraps a Fetcher with bounded retries. The backoff
// doubles after every failed attempt; the final attempt's outcome, whether
// a success, a non-success status, or an error, is returned as-is.
type retryingFetcher struct {
	inner          Fetcher
	maxRetries     int
	initialBackoff time.Duration
	logger         *zap.Logger
}

// WithRetry layers retry-with-backoff on top of a Fetcher.
func WithRetry(inner Fetcher, maxRetries int, initialBackoff time.Duration, logger *zap.Logger) Fetcher {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if initialBackoff <= 0 {
		initialBackoff = 400 * time.Millisecond
	}
	return &retryingFetcher{
		inner:          inner,
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
		logger:         logger,
	}
}

func (f *retryingFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	backoff := f.initialBackoff
	var page Page
	var err error
	for attempt := 0; ; attempt++ {
		page, err = f.inner.Fetch(ctx, rawURL)
		if err == nil && isSuccess(page.StatusCode) {
			return page, nil
		}
		if attempt >= f.maxRetries || ctx.Err() != nil {
			return page, err
		}
		f.logger.Debug("fetch attempt failed, backing off",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Int("status_code", page.StatusCode),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return page, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
