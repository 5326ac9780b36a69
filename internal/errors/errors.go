// Package errors contains helper functions for wrapping errors with stack traces, stack output, and panic recovery.
package errors

import (
	"errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// New creates a new error carrying the current stack trace. If the given value is already an error
// with a stack trace it is returned untouched; nil yields nil.
func New(val any) error {
	if val == nil {
		return nil
	}

	if err, ok := val.(error); ok && ContainsStackTrace(err) {
		return err
	}

	return goerrors.Wrap(val, 1)
}

// Errorf creates a new error and wraps in an Error type that contains the stack trace.
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...) //nolint:err113

	for _, arg := range args {
		if arg, ok := arg.(error); ok && ContainsStackTrace(arg) {
			return err
		}
	}

	return goerrors.Wrap(err, 1)
}

// ErrorWithExitCode pairs an error with the process exit code it should produce.
type ErrorWithExitCode struct {
	Err      error
	ExitCode int
}

func (err ErrorWithExitCode) Error() string {
	return err.Err.Error()
}

func (err ErrorWithExitCode) Unwrap() error {
	return err.Err
}

// ExitCode returns the exit code of the first ErrorWithExitCode found in err's tree.
func ExitCode(err error) (int, bool) {
	var exitErr ErrorWithExitCode

	if errors.As(err, &exitErr) {
		return exitErr.ExitCode, true
	}

	var exitErrPtr *ErrorWithExitCode

	if errors.As(err, &exitErrPtr) && exitErrPtr != nil {
		return exitErrPtr.ExitCode, true
	}

	return 0, false
}
