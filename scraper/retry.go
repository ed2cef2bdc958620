package scraper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/catalog-harvest/config"
)

// Retrier re-issues retryable operations with capped exponential backoff.
// It is safe for concurrent use.
type Retrier struct {
	maxRetries int
	base       time.Duration
	max        time.Duration
	metrics    *Metrics

	mu           sync.Mutex
	totalRetries int
}

// NewRetrier builds a Retrier from the retry settings in cfg.
func NewRetrier(cfg *config.Config, metrics *Metrics) *Retrier {
	return &Retrier{
		maxRetries: cfg.MaxRetries,
		base:       cfg.RetryBackoff,
		max:        cfg.RetryBackoffMax,
		metrics:    metrics,
	}
}

// Do runs op until it succeeds, fails with a non-retryable error, exhausts
// the retry budget or ctx is done. The last error is returned.
func (r *Retrier) Do(ctx context.Context, label string, op func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = op(ctx)
		if err == nil || !IsRetryable(err) || attempt >= r.maxRetries {
			return err
		}

		r.mu.Lock()
		r.totalRetries++
		r.mu.Unlock()
		r.metrics.IncRetries()

		delay := r.backoff(attempt + 1)
		slog.Debug("retrying",
			slog.String("target", label),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

func (r *Retrier) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := r.base
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if r.max > 0 && delay > r.max {
		delay = r.max
	}
	return delay
}

// TotalRetries returns the number of retries issued so far.
func (r *Retrier) TotalRetries() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalRetries
}
