package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"confessions/internal/models"
	"confessions/internal/observability"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds every call to the confession store.
type RetryPolicy struct {
	// Timeout applies to each attempt. Zero disables the per-attempt deadline.
	Timeout         time.Duration
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy matches the configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Timeout:         5 * time.Second,
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return b
}

// permanent reports errors that a retry cannot fix.
func permanent(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case models.CodeValidation, models.CodeNotFound, models.CodeConflict,
		models.CodeUnauthenticated, models.CodeUnauthorized:
		return true
	}
	return false
}

// remoteCall runs fn against the store with a per-attempt deadline and
// exponential backoff between attempts.
func remoteCall[T any](ctx context.Context, p RetryPolicy, logger *slog.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	attempt := func() (T, error) {
		callCtx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}
		res, err := fn(callCtx)
		if err != nil && permanent(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	res, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			observability.RemoteRetries.WithLabelValues(op).Inc()
			if logger != nil {
				logger.WarnContext(ctx, "store call failed, retrying",
					slog.String("operation", op),
					slog.Duration("backoff", next),
					slog.String("error", err.Error()))
			}
		}),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	return res, err
}

// remoteExec is remoteCall for operations without a result.
func remoteExec(ctx context.Context, p RetryPolicy, logger *slog.Logger, op string, fn func(context.Context) error) error {
	_, err := remoteCall(ctx, p, logger, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// asWriteError keeps domain errors intact and wraps everything else as a
// failed store write.
func asWriteError(op string, err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return models.NewRemoteWriteError(op, err)
}
