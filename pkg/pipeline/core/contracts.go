// Package core holds the small contracts shared by the pipeline stages: the
// retry classification understood by the worker pool and the progress hook
// long-running stages report through.
package core

import (
	"context"
	"errors"
)

// ProcessFunc transforms one input item into one output item.
type ProcessFunc[In any, Out any] func(ctx context.Context, in In) (Out, error)

// ProgressFunc is called as items complete. message names the item that just
// finished.
type ProgressFunc func(done, total int, message string)

// TransientError marks an error as retryable by worker implementations.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// LimitedTransientError is retryable, but at most ExtraRetries times regardless
// of the pool-wide retry budget. Upstreams that cancel a request mid-flight use
// it so a flapping call does not burn the whole budget.
type LimitedTransientError struct {
	Err          error
	ExtraRetries int
}

func (e *LimitedTransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error (limited retries)"
	}
	return e.Err.Error()
}

func (e *LimitedTransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// MaxExtraRetries caps the retries the worker pool may spend on this error.
func (e *LimitedTransientError) MaxExtraRetries() int {
	if e == nil || e.ExtraRetries < 0 {
		return 0
	}
	return e.ExtraRetries
}

// Transient wraps err as a TransientError. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err was explicitly marked retryable.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var lte *LimitedTransientError
	return errors.As(err, &lte)
}
