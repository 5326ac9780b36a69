package config

import (
	"fmt"
	"strings"
)

// FileReadError means a configuration or project file exists but cannot be read.
type FileReadError struct {
	underlyingErr error
	path          string
}

func (err FileReadError) Error() string {
	return fmt.Sprintf("could not read %s: %s", err.path, err.underlyingErr)
}

func (err FileReadError) Unwrap() error {
	return err.underlyingErr
}

func NewFileReadError(path string, err error) *FileReadError {
	return &FileReadError{
		path:          path,
		underlyingErr: err,
	}
}

// DecodeError means a configuration or project file is malformed.
type DecodeError struct {
	underlyingErr error
	path          string
}

func (err DecodeError) Error() string {
	return fmt.Sprintf("could not decode %s: %s", err.path, err.underlyingErr)
}

func (err DecodeError) Unwrap() error {
	return err.underlyingErr
}

func NewDecodeError(path string, err error) *DecodeError {
	return &DecodeError{
		path:          path,
		underlyingErr: err,
	}
}

// ConfigurationError lists every problem Validate found.
type ConfigurationError struct {
	Problems []string
}

func (err ConfigurationError) Error() string {
	if len(err.Problems) == 1 {
		return "invalid configuration: " + err.Problems[0]
	}

	return "invalid configuration:\n  " + strings.Join(err.Problems, "\n  ")
}
