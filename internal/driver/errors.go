package driver

import (
	"fmt"
	"strings"
)

// NotAvailableError means the program cannot run in this environment at all: the executable is missing,
// not executable, or a required licence or variable is absent. Stage selection falls back on it.
type NotAvailableError struct {
	Executable string
	Reason     string
	Err        error
}

func (err NotAvailableError) Error() string {
	msg := fmt.Sprintf("%s not available", err.Executable)

	if err.Reason != "" {
		msg += ": " + err.Reason
	}

	if err.Err != nil {
		msg += ": " + err.Err.Error()
	}

	return msg
}

func (err NotAvailableError) Unwrap() error {
	return err.Err
}

// ConfigurationError reports misuse of a handle's configuration.
type ConfigurationError struct {
	Msg string
}

func (err ConfigurationError) Error() string {
	return "invalid driver configuration: " + err.Msg
}

// InvalidStateError reports an operation attempted in the wrong lifecycle state.
type InvalidStateError struct {
	Op    string
	State State
}

func (err InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s: handle is %s", err.Op, err.State)
}

// ExternalProgramError means the program ran and reported a fatal condition recognised by a marker.
type ExternalProgramError struct {
	Program string
	Marker  string
	Line    string
}

func (err ExternalProgramError) Error() string {
	msg := fmt.Sprintf("%s failed: %s", err.Program, err.Marker)

	if line := strings.TrimSpace(err.Line); line != "" && line != err.Marker {
		msg += ": " + line
	}

	return msg
}

// CancelledError means the run was terminated before it finished. Its output must be treated as absent.
type CancelledError struct {
	Command string
	Err     error
}

func (err CancelledError) Error() string {
	return fmt.Sprintf("%q was terminated: %v", err.Command, err.Err)
}

func (err CancelledError) Unwrap() error {
	return err.Err
}
