package reader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bookflow/config"
	"bookflow/logger"
)

// Fetcher retrieves one archive object by key. A missing object is reported
// as an Archive with Status NotPublished, never as an error.
type Fetcher interface {
	Fetch(ctx context.Context, key string) (*Archive, error)
}

// RetryPolicy bounds transient-failure retries with exponential backoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  int
	// OnRetry is called before each retry sleep.
	OnRetry func(attempt int, err error)
}

// PolicyFromConfig builds a RetryPolicy from reader.retry.
func PolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
		Multiplier:  cfg.BackoffMultiplier,
	}
}

// Delay returns the backoff before retry number attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	for i := 1; i < attempt; i++ {
		d *= time.Duration(mult)
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// permanentError stops the retry loop immediately.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }

// attemptFunc performs one fetch attempt into the spool.
type attemptFunc func(ctx context.Context, sp *spool) (Status, int64, error)

// fetchWithRetry runs attempt until it succeeds, reports NotPublished, fails
// permanently or exhausts the policy.
func fetchWithRetry(ctx context.Context, log *logger.Entry, policy RetryPolicy, spoolDir, key string, attempt attemptFunc) (*Archive, error) {
	sp, err := newSpool(spoolDir)
	if err != nil {
		return nil, err
	}

	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for n := 1; n <= maxAttempts; n++ {
		if n > 1 {
			if err := sp.reset(); err != nil {
				sp.discard()
				return nil, fmt.Errorf("reset spool: %w", err)
			}
		}

		status, size, err := attempt(ctx, sp)
		if err == nil {
			if status == NotPublished {
				sp.discard()
				return NewNotPublished(key), nil
			}
			return sp.archive(key, size), nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) || ctx.Err() != nil {
			break
		}
		if n == maxAttempts {
			break
		}

		delay := policy.Delay(n)
		log.WithError(err).WithFields(logger.Fields{
			"key":     key,
			"attempt": n,
			"delay":   delay.String(),
		}).Warn("fetch failed, retrying")
		if policy.OnRetry != nil {
			policy.OnRetry(n, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			sp.discard()
			return nil, fmt.Errorf("fetch %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}

	sp.discard()
	return nil, fmt.Errorf("fetch %s: %w", key, lastErr)
}
