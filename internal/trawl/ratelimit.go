package trawl

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// domainLimiter enforces a per-host QPS budget so one run cannot hammer a
// single marketplace front. A QPS of zero disables limiting.
type domainLimiter struct {
	qps      float64
	limiters sync.Map
}

func newDomainLimiter(qps float64) *domainLimiter {
	return &domainLimiter{qps: qps}
}

// Wait blocks until the host's budget allows another request.
func (l *domainLimiter) Wait(ctx context.Context, rawURL string) error {
	if l == nil || l.qps <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url for rate limit: %w", err)
	}
	host := strings.ToLower(parsed.Hostname())
	val, _ := l.limiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(l.qps), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}
