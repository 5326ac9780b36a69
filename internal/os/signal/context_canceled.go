package signal

import (
	"context"
	"os"
)

// ContextCanceledCause is set as the cancellation cause when a context is cancelled because of an OS signal.
type ContextCanceledCause struct {
	Signal os.Signal
}

// NewContextCanceledCause returns a new `ContextCanceledCause` instance.
func NewContextCanceledCause(sig os.Signal) *ContextCanceledCause {
	return &ContextCanceledCause{Signal: sig}
}

// Error implements the `Error` method.
func (ContextCanceledCause) Error() string {
	return context.Canceled.Error()
}

// Unwrap implements the `Unwrap` method.
func (ContextCanceledCause) Unwrap() error {
	return context.Canceled
}
