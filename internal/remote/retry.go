package remote

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chunklite/chunklite/internal/config"
)

// Tier selects the timeout budget applied to one class of operation. Each
// tier bounds its own attempts independently; budgets never nest.
type Tier int

const (
	TierEngineInit Tier = iota
	TierBulkFetch
	TierQueryExec
	TierEmergency
)

func (t Tier) String() string {
	switch t {
	case TierEngineInit:
		return "engine-init"
	case TierBulkFetch:
		return "bulk-fetch"
	case TierQueryExec:
		return "query-exec"
	case TierEmergency:
		return "emergency-fallback"
	default:
		return "unknown"
	}
}

const (
	// maxAttempts is the total attempt count: one immediate try plus three
	// retries at 1s, 2s and 4s.
	maxAttempts = 4
	backoffBase = time.Second
)

// Retrier wraps a single network operation with bounded retries, exponential
// backoff and a per-tier timeout. Every attempt runs under its own deadline;
// an attempt that exceeds it counts as a failure and the schedule moves on.
type Retrier struct {
	timeouts map[Tier]time.Duration
	logger   *zap.SugaredLogger

	// sleep is swapped out by tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier builds a Retrier from the configured tier budgets.
func NewRetrier(timeouts config.TimeoutConfig, logger *zap.SugaredLogger) *Retrier {
	return &Retrier{
		timeouts: map[Tier]time.Duration{
			TierEngineInit: timeouts.EngineInit,
			TierBulkFetch:  timeouts.BulkFetch,
			TierQueryExec:  timeouts.QueryExec,
			TierEmergency:  timeouts.Emergency,
		},
		logger: logger,
		sleep:  sleepContext,
	}
}

// Execute runs op until it succeeds, fails terminally, or the attempt budget
// is spent. Terminal errors are returned as-is; exhaustion returns a
// *RetryExhaustedError carrying the last underlying error.
func (r *Retrier) Execute(ctx context.Context, tier Tier, name string, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := backoffBase << (attempt - 2)
			if err := r.sleep(ctx, delay); err != nil {
				return err
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.timeouts[tier])
		start := time.Now()
		err := op(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		r.logger.Warnw("attempt failed",
			"operation", name,
			"tier", tier.String(),
			"attempt", attempt,
			"elapsed", time.Since(start),
			"error", err,
		)

		if IsTerminal(err) {
			return err
		}
	}

	return &RetryExhaustedError{Tier: tier, Attempts: maxAttempts, Err: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
