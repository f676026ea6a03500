package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RetryOptions configures the bounded-retry protocol around one guard
// invocation.
type RetryOptions struct {
	// MaxRetry is the number of re-attempts after the first failure;
	// total attempts = MaxRetry + 1. Defaults to 2.
	MaxRetry int
	// Backoff is the base sleep; attempt i sleeps Backoff*(i+1).
	// Defaults to 500ms.
	Backoff time.Duration
	// Fast compresses backoff sleeps to zero (dry runs, tests).
	Fast bool
}

func (o RetryOptions) normalize() RetryOptions {
	if o.MaxRetry <= 0 {
		o.MaxRetry = 2
	}
	if o.Backoff <= 0 {
		o.Backoff = 500 * time.Millisecond
	}
	return o
}

// RunWithRetry invokes fn, retrying on *Violation up to opts.MaxRetry
// additional attempts with linear backoff. Any other error propagates
// immediately: retries are reserved for guards signaling a recoverable
// quality problem, never for programming errors.
//
// After the final failed attempt it returns a new Violation whose guard
// name comes from the original violation (falling back to name), whose
// message is "<guard> failed after N attempts", and whose History holds
// every per-attempt message for structured consumption.
func RunWithRetry(ctx context.Context, logger *zap.Logger, opts RetryOptions, name string, fn func(context.Context) (*Result, error)) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.normalize()
	total := opts.MaxRetry + 1

	var history []string
	var last *Violation

	for attempt := 0; attempt < total; attempt++ {
		logger.Debug("retry controller: executing",
			zap.String("guard", name),
			zap.Int("attempt", attempt+1),
			zap.Int("total", total))

		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		var v *Violation
		if !errors.As(err, &v) {
			logger.Error("retry controller: non-retryable error",
				zap.String("guard", name), zap.Error(err))
			return nil, err
		}

		last = v
		history = append(history, v.Error())
		logger.Info("retry controller: attempt failed",
			zap.String("guard", name),
			zap.Int("attempt", attempt+1),
			zap.Int("total", total),
			zap.String("violation", v.Error()))

		if attempt == opts.MaxRetry {
			break
		}
		if err := sleepBackoff(ctx, opts, attempt); err != nil {
			return nil, err
		}
	}

	guardName := last.GuardName
	if guardName == "" {
		guardName = name
	}
	logger.Warn("retry controller: exhausted",
		zap.String("guard", guardName),
		zap.Int("attempts", total),
		zap.Strings("history", history))

	return nil, &Violation{
		GuardName: guardName,
		Message:   fmt.Sprintf("%s failed after %d attempts", guardName, total),
		Flags:     last.Flags,
		Attempts:  total,
		History:   history,
	}
}

func sleepBackoff(ctx context.Context, opts RetryOptions, attempt int) error {
	if opts.Fast {
		return ctx.Err()
	}
	d := opts.Backoff * time.Duration(attempt+1)
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
