// Package decorator adds suite-specific error checking to driver handles by wrapping them. A decorated handle
// forwards every driver operation to the handle it wraps, so spawning behaviour stays that of the innermost
// handle, and decorating again only adds checks.
package decorator

import (
	"github.com/xia2/xia2-go/internal/driver"
	"github.com/xia2/xia2-go/internal/errors"
)

// Check inspects the captured output of program and returns an error for a fatal condition it recognises.
type Check func(program string, lines []string) error

// SuiteChecker is implemented by handles that know their program suite's fatal markers.
type SuiteChecker interface {
	driver.Handle
	CheckForSuiteErrors() error
}

// Decorated is a handle with extra checks.
type Decorated struct {
	driver.Handle

	checks []Check
}

// Decorate wraps handle with checks.
func Decorate(handle driver.Handle, checks ...Check) *Decorated {
	return &Decorated{Handle: handle, checks: checks}
}

// CheckForSuiteErrors runs the checks of every decorator layer, innermost first, against the captured output.
// It is only legal once the handle is Closed.
func (decorated *Decorated) CheckForSuiteErrors() error {
	if state := decorated.State(); state != driver.Closed {
		return errors.New(&driver.InvalidStateError{Op: "check output", State: state})
	}

	if inner, ok := decorated.Handle.(SuiteChecker); ok {
		if err := inner.CheckForSuiteErrors(); err != nil {
			return err
		}
	}

	lines, err := decorated.AllOutput()
	if err != nil {
		return err
	}

	program := decorated.Executable()

	for _, check := range decorated.checks {
		if err := check(program, lines); err != nil {
			return err
		}
	}

	return nil
}

// Unwrap returns the wrapped handle.
func (decorated *Decorated) Unwrap() driver.Handle {
	return decorated.Handle
}

// Innermost returns the handle that actually runs the program.
func Innermost(handle driver.Handle) driver.Handle {
	for {
		wrapper, ok := handle.(interface{ Unwrap() driver.Handle })
		if !ok {
			return handle
		}

		handle = wrapper.Unwrap()
	}
}
