package github

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kirosync/kirosync/internal/debug"
)

// checkRateLimit is the cooperative backpressure gate run before every issue
// operation. It refreshes the snapshot when it is stale (or when the cached
// remaining budget already sits at the buffer), and when the refreshed budget
// is at or below the buffer it sleeps until the reported reset plus a margin,
// then refreshes once more. Callers are serialized by waiting inline; there
// is no queue.
func (c *Client) checkRateLimit(ctx context.Context) error {
	c.rateMu.Lock()
	defer c.rateMu.Unlock()

	stale := c.rateLimit == nil || time.Since(c.rateFetched) > rateLimitTTL
	nearBuffer := c.rateLimit != nil && c.rateLimit.Remaining <= c.rateLimitBuffer()
	if stale || nearBuffer {
		if err := c.refreshRateLimitLocked(ctx); err != nil {
			// The API enforces its own limits and the retry layer handles
			// 429s, so a failed snapshot refresh is not worth failing the
			// operation over.
			debug.Logf("rate limit refresh failed: %v\n", err)
			return nil
		}
	}

	if c.rateLimit.Remaining > c.rateLimitBuffer() {
		return nil
	}

	wait := time.Until(time.Unix(c.rateLimit.Reset, 0)) + resetMargin
	if wait > 0 {
		debug.Logf("rate limit budget %d at buffer %d, waiting %s for reset\n",
			c.rateLimit.Remaining, c.rateLimitBuffer(), wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	if err := c.refreshRateLimitLocked(ctx); err != nil {
		debug.Logf("rate limit refresh failed after reset wait: %v\n", err)
	}
	return nil
}

// refreshRateLimitLocked fetches GET /rate_limit. Single attempt, no retry
// wrapper: the gate must never recurse into itself, and the endpoint does
// not count against quota.
func (c *Client) refreshRateLimitLocked(ctx context.Context) error {
	respBody, err := c.rawRequest(ctx, "rate_limit", "GET", c.buildURL("/rate_limit", nil), nil)
	if err != nil {
		return err
	}

	var parsed rateLimitResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return transportError("rate_limit", err)
	}

	c.rateLimit = &parsed.Rate
	c.rateFetched = time.Now()
	return nil
}

// RateLimitSnapshot returns the last-fetched rate limit, or nil if none has
// been fetched yet. Diagnostic use only.
func (c *Client) RateLimitSnapshot() *RateLimit {
	c.rateMu.Lock()
	defer c.rateMu.Unlock()
	if c.rateLimit == nil {
		return nil
	}
	snapshot := *c.rateLimit
	return &snapshot
}

func (c *Client) rateLimitBuffer() int {
	if c.RateLimitBuffer > 0 {
		return c.RateLimitBuffer
	}
	return DefaultRateLimitBuffer
}
