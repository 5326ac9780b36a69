package util

import (
	"context"
	"fmt"
	"time"

	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/pkg/log"
)

// DoWithRetry runs action until it succeeds. A failure is retried after sleepBetweenRetries, up to maxRetries
// retries; after that a MaxRetriesExceeded error carrying the last failure is returned. An action returning a
// FatalError, or a cancelled context, stops the retries at once. attempt counts from 1.
func DoWithRetry(ctx context.Context, actionDescription string, maxRetries int, sleepBetweenRetries time.Duration, logger log.Logger, action func(ctx context.Context, attempt int) error) error {
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		logger.Debugf("%s (attempt %d of %d)", actionDescription, i+1, maxRetries+1)

		err := action(ctx, i+1)
		if err == nil {
			return nil
		}

		var fatalErr *FatalError
		if errors.As(err, &fatalErr) {
			return fatalErr.Underlying
		}

		if ctx.Err() != nil {
			logger.Debugf("%s returned an error: %s.", actionDescription, err.Error())

			return errors.New(ctx.Err())
		}

		lastErr = err

		if i == maxRetries {
			break
		}

		logger.Warnf("%s returned an error: %s. Retry %d of %d in %s.", actionDescription, err.Error(), i+1, maxRetries, sleepBetweenRetries)

		select {
		case <-time.After(sleepBetweenRetries):
		case <-ctx.Done():
			return errors.New(ctx.Err())
		}
	}

	return errors.New(&MaxRetriesExceeded{Description: actionDescription, MaxRetries: maxRetries, Err: lastErr})
}

// MaxRetriesExceeded is returned when an action still fails after its last retry.
type MaxRetriesExceeded struct {
	Err         error
	Description string
	MaxRetries  int
}

func (err MaxRetriesExceeded) Error() string {
	return fmt.Sprintf("'%s' unsuccessful after %d retries: %v", err.Description, err.MaxRetries, err.Err)
}

func (err MaxRetriesExceeded) Unwrap() error {
	return err.Err
}

// FatalError wraps an error that must not be retried.
type FatalError struct {
	Underlying error
}

func (err FatalError) Error() string {
	return err.Underlying.Error()
}

func (err FatalError) Unwrap() error {
	return err.Underlying
}
