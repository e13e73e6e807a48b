package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config is the retry policy applied by Do.
type Config struct {
	MaxAttempts int           `json:"max_attempts"` // Total attempts including the first (default: 3)
	BaseDelay   time.Duration `json:"base_delay"`   // Delay before the first retry (default: 2s)
	MaxDelay    time.Duration `json:"max_delay"`    // Cap on any single delay (default: 30s)
	Multiplier  float64       `json:"multiplier"`   // Exponential backoff multiplier (default: 2.0)
	Jitter      bool          `json:"jitter"`       // Add random jitter to prevent thundering herd
}

// Result describes how an operation under Do went.
type Result struct {
	Attempts      int           `json:"attempts"`
	TotalDuration time.Duration `json:"total_duration"`
	LastError     error         `json:"-"`
	Success       bool          `json:"success"`
	Reasons       []string      `json:"reasons,omitempty"` // one entry per failed attempt
}

// DefaultConfig returns the service retry policy: three attempts with
// exponential delays of 2s, 4s, 8s between them.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// retryable is implemented by errors that know whether a retry can help.
type retryable interface {
	Retryable() bool
}

// IsRetryable reports whether err is worth retrying. Typed errors decide for
// themselves; everything else falls back to transport-level heuristics.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	transient := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"service unavailable",
		"too many requests",
		"no such host",
		"network unreachable",
		"broken pipe",
		"eof",
	}
	for _, s := range transient {
		if strings.Contains(errStr, s) {
			return true
		}
	}

	return false
}

// Do executes op under the policy, sleeping between attempts. A non-retryable
// error stops immediately; context cancellation aborts any pending backoff.
func Do(ctx context.Context, cfg Config, logger zerolog.Logger, op func() error) Result {
	start := time.Now()
	result := Result{}

	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result.Attempts = attempt + 1

		err := op()
		if err == nil {
			result.Success = true
			result.TotalDuration = time.Since(start)
			if attempt > 0 {
				logger.Debug().
					Int("attempts", result.Attempts).
					Dur("total_duration", result.TotalDuration).
					Msg("Operation succeeded after retry")
			}
			return result
		}

		result.LastError = err
		result.Reasons = append(result.Reasons, err.Error())

		if !IsRetryable(err) {
			result.TotalDuration = time.Since(start)
			logger.Debug().Err(err).Msg("Error is not retryable, giving up")
			return result
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := Delay(cfg, attempt)
		logger.Debug().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", cfg.MaxAttempts).
			Dur("delay", delay).
			Msg("Retrying after backoff")

		select {
		case <-ctx.Done():
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(start)
			logger.Debug().Err(ctx.Err()).Msg("Cancelled during backoff delay")
			return result
		case <-time.After(delay):
		}
	}

	result.TotalDuration = time.Since(start)
	logger.Warn().
		Err(result.LastError).
		Int("attempts", result.Attempts).
		Dur("total_duration", result.TotalDuration).
		Msg("Operation failed after all attempts")
	return result
}

// Delay returns the backoff before retry number attempt+1 (zero-based).
func Delay(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt))

	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	if cfg.Jitter {
		// Up to 10% either way
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(cfg.BaseDelay)
		}
	}

	return time.Duration(delay)
}
