package cli

import (
	"github.com/xia2/xia2-go/internal/config"
	"github.com/xia2/xia2-go/internal/driver"
	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/logparse"
	"github.com/xia2/xia2-go/internal/pipeline"
	"github.com/xia2/xia2-go/internal/stage"
)

// Constants for exit codes.
const (
	ExitCodeSuccess ExitCode = iota
	// ExitCodeMisuse is a usage, configuration or programming error.
	ExitCodeMisuse
	// ExitCodeProcessingFailed means a program failed on the data, or its output could not be understood, after
	// every retry.
	ExitCodeProcessingFailed
	// ExitCodeToolchainUnavailable means a stage had no implementation that could run here.
	ExitCodeToolchainUnavailable
)

// ExitCode is a number between 0 and 255, which is returned by any Unix command when it returns control to its parent process.
type ExitCode byte

// ExitCoder is an error carrying the exit code it should end the process with.
type ExitCoder interface {
	error
	ExitCode() int
	Unwrap() error
}

type exitError struct {
	err      error
	exitCode ExitCode
}

func (ee *exitError) Unwrap() error {
	return ee.err
}

func (ee *exitError) Error() string {
	if ee.err == nil {
		return ""
	}

	return ee.err.Error()
}

func (ee *exitError) ExitCode() int {
	return int(ee.exitCode)
}

// NewExitError returns err ending the process with exitCode, whatever err is.
func NewExitError(err error, exitCode ExitCode) ExitCoder {
	return &exitError{err: err, exitCode: exitCode}
}

// ExitCodeOf returns the exit code err ends the process with. When several sweeps failed differently, misuse wins
// over an unavailable toolchain, which wins over failed processing.
func ExitCodeOf(err error) ExitCode {
	if err == nil {
		return ExitCodeSuccess
	}

	code := ExitCodeSuccess

	for _, err := range errors.UnwrapMultiErrors(err) {
		if next := exitCodeOf(err); severity(next) > severity(code) {
			code = next
		}
	}

	return code
}

func exitCodeOf(err error) ExitCode {
	var (
		exitCoder      ExitCoder
		toolchainErr   *pipeline.ToolchainUnavailableError
		preselectedErr *stage.PreselectedNotAvailableError
		notAvailErr    *driver.NotAvailableError
		retriesErr     *pipeline.RetriesExhaustedError
		parseErr       *logparse.ParseError
		programErr     *driver.ExternalProgramError
		runErr         *stage.RunError
		configErr      *config.ConfigurationError
		constructErr   *stage.ConstructionError
	)

	switch {
	case errors.As(err, &exitCoder):
		return ExitCode(exitCoder.ExitCode())
	case errors.As(err, &configErr), errors.As(err, &constructErr):
		return ExitCodeMisuse
	case errors.As(err, &toolchainErr), errors.As(err, &preselectedErr), errors.As(err, &notAvailErr):
		return ExitCodeToolchainUnavailable
	case errors.As(err, &retriesErr), errors.As(err, &parseErr), errors.As(err, &programErr), errors.As(err, &runErr):
		return ExitCodeProcessingFailed
	case errors.IsContextCanceled(err):
		return ExitCodeProcessingFailed
	}

	return ExitCodeMisuse
}

func severity(code ExitCode) int {
	switch code {
	case ExitCodeSuccess:
		return 0
	case ExitCodeProcessingFailed:
		return 1
	case ExitCodeToolchainUnavailable:
		return 2
	default:
		return 3
	}
}
