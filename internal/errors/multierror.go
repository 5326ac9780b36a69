package errors

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// MultiError collects the errors of independent tasks, such as concurrently processed sweeps.
type MultiError struct {
	inner *multierror.Error
}

// Error renders every wrapped error as an indented bullet list.
func (errs *MultiError) Error() string {
	wrapped := UnwrapMultiErrors(errs)
	lines := make([]string, 0, len(wrapped))

	for _, err := range wrapped {
		lines = append(lines, bullet(err.Error()))
	}

	body := strings.Join(lines, "\n\n")

	if len(wrapped) == 1 {
		return fmt.Sprintf("error occurred:\n\n%s\n", body)
	}

	return fmt.Sprintf("%d errors occurred:\n\n%s\n", len(wrapped), body)
}

// WrappedErrors returns the error slice that this Error is wrapping.
func (errs *MultiError) WrappedErrors() []error {
	if errs == nil || errs.inner == nil {
		return nil
	}

	return errs.inner.WrappedErrors()
}

func (errs *MultiError) Unwrap() []error {
	return errs.WrappedErrors()
}

// ErrorOrNil returns nil when nothing was appended.
func (errs *MultiError) ErrorOrNil() error {
	if errs == nil || errs.inner == nil {
		return nil
	}

	if err := errs.inner.ErrorOrNil(); err != nil {
		return errs
	}

	return nil
}

// Append returns a new MultiError holding the existing errors plus appendErrs. Nil errors are skipped.
func (errs *MultiError) Append(appendErrs ...error) *MultiError {
	if errs == nil {
		errs = &MultiError{inner: new(multierror.Error)}
	}

	return &MultiError{inner: multierror.Append(errs.inner, appendErrs...)}
}

// Len returns the number of wrapped errors.
func (errs *MultiError) Len() int {
	return len(errs.WrappedErrors())
}

func bullet(str string) string {
	str = strings.ReplaceAll(str, "\r\n", "\n")
	rawLines := strings.Split(str, "\n")

	lines := make([]string, 0, len(rawLines))

	for i, line := range rawLines {
		if i == 0 {
			lines = append(lines, "* "+line)
			continue
		}

		lines = append(lines, "  "+line)
	}

	return strings.Join(lines, "\n")
}
