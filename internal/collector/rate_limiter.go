package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter manages GitHub API rate limiting
type RateLimiter interface {
	Wait(ctx context.Context) error
	CheckLimit() (remaining int, resetTime time.Time)
	UpdateLimit(remaining int, resetTime time.Time)
}

// githubRateLimiter spaces requests and pauses until the reset time when the
// remaining quota reported by GitHub runs low
type githubRateLimiter struct {
	mu        sync.Mutex
	remaining int
	resetTime time.Time
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// lowWatermark is the remaining-request count at which we wait for the reset
const lowWatermark = 10

// NewRateLimiter creates a new rate limiter. A non-positive minDelay disables
// request spacing.
func NewRateLimiter(minDelay time.Duration, logger *slog.Logger) RateLimiter {
	limit := rate.Inf
	if minDelay > 0 {
		limit = rate.Every(minDelay)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &githubRateLimiter{
		remaining: 5000, // GitHub API default limit
		resetTime: time.Now().Add(time.Hour),
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger,
	}
}

// Wait blocks until it's safe to make another API call
func (r *githubRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	remaining, resetTime := r.remaining, r.resetTime
	r.mu.Unlock()

	if remaining <= lowWatermark {
		if waitDuration := time.Until(resetTime); waitDuration > 0 {
			r.logger.Warn("rate limit low, waiting for reset",
				"remaining", remaining, "wait", waitDuration.Round(time.Second))
			timer := time.NewTimer(waitDuration)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			r.logger.Info("rate limit reset, continuing")
		}

		r.mu.Lock()
		r.remaining = 5000
		r.resetTime = time.Now().Add(time.Hour)
		r.mu.Unlock()
	}

	return r.limiter.Wait(ctx)
}

// CheckLimit returns the current rate limit status
func (r *githubRateLimiter) CheckLimit() (int, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining, r.resetTime
}

// UpdateLimit updates the rate limit from API response headers
func (r *githubRateLimiter) UpdateLimit(remaining int, resetTime time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining = remaining
	r.resetTime = resetTime
}
