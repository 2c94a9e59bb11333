// Package retry wraps the fetcher with exponential backoff for transient
// failures while downloading the rules document.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/linkscrub/linkscrub/config"
	"github.com/linkscrub/linkscrub/fetcher"
)

// jitterPercent is the jitter applied to retry delays (+/- 25%).
const jitterPercent = 0.25

// Retrier retries failed fetches with exponential backoff.
type Retrier struct {
	fetcher *fetcher.Fetcher
	config  config.RetryConfig
}

// New creates a new Retrier around the given fetcher.
func New(f *fetcher.Fetcher, cfg config.RetryConfig) *Retrier {
	return &Retrier{
		fetcher: f,
		config:  cfg,
	}
}

// Fetch attempts to fetch the URL, retrying retryable status codes and
// transport failures with backoff until the retry budget runs out or the
// context is cancelled.
func (r *Retrier) Fetch(ctx context.Context, url string) (*fetcher.Response, error) {
	maxRetries := r.config.GetMaxRetries()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err := r.fetcher.Fetch(ctx, url)

		if resp != nil {
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return resp, nil
			}
			if !r.config.ShouldRetry(resp.StatusCode) {
				return resp, err
			}
			lastErr = fmt.Errorf("attempt %d: HTTP %d", attempt, resp.StatusCode)
		} else {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = fmt.Errorf("attempt %d failed: %w", attempt, err)
		}

		if attempt < maxRetries {
			if sleepErr := r.sleep(ctx, r.calculateBackoff(attempt)); sleepErr != nil {
				return nil, sleepErr
			}
		}
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", maxRetries+1, lastErr)
}

// calculateBackoff computes the delay for a given attempt.
func (r *Retrier) calculateBackoff(attempt int) time.Duration {
	initialDelay := r.config.GetInitialDelay()
	maxDelay := r.config.GetMaxDelay()
	multiplier := r.config.GetMultiplier()

	delay := float64(initialDelay) * math.Pow(multiplier, float64(attempt))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}

	return addJitter(time.Duration(delay))
}

// addJitter randomizes a delay by +/- 25% to avoid synchronized retries.
func addJitter(duration time.Duration) time.Duration {
	if duration == 0 {
		return 0
	}

	jitterRange := float64(duration) * jitterPercent
	jitter := (rand.Float64()*2.0 - 1.0) * jitterRange

	result := float64(duration) + jitter
	if result < 0 {
		return 0
	}
	return time.Duration(result)
}

// sleep waits for the duration or until the context is cancelled.
func (r *Retrier) sleep(ctx context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
