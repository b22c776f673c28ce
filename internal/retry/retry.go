package retry

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrInvalidConfig is returned when Do is called without attempts or an
// operation.
var ErrInvalidConfig = errors.New("retry: invalid configuration")

// Config controls the exponential backoff of Do.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	// MaxDelay caps the delay between attempts. Zero means uncapped.
	MaxDelay time.Duration
}

// DefaultConfig is used for readiness polling and uploads.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
	}
}

// Operation is the unit of work retried by Do.
type Operation func(ctx context.Context) error

// Classifier reports whether an error is worth another attempt.
type Classifier func(err error) bool

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err so Do stops immediately, whatever the classifier says.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs op until it succeeds, returns a non-retryable error or runs out of
// attempts. A nil classifier treats every error as retryable. When ctx ends
// during a backoff the last operation error is returned.
func Do(ctx context.Context, cfg Config, name string, op Operation, retryable Classifier) error {
	if cfg.MaxAttempts <= 0 || op == nil {
		return ErrInvalidConfig
	}
	if retryable == nil {
		retryable = func(error) bool { return true }
	}

	logger := log.With().Str("component", "retry").Str("operation", name).Logger()
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 1 {
				logger.Debug().Int("attempt", attempt).Msg("Operation succeeded after retry")
			}
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			logger.Warn().Err(lastErr).Int("attempts", attempt).Msg("Giving up after max attempts")
			return lastErr
		}

		logger.Debug().Err(lastErr).Int("attempt", attempt).Dur("retry_after", delay).Msg("Attempt failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		}

		delay *= 2
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}
