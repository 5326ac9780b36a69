package exec

import (
	"time"

	"github.com/xia2/xia2-go/pkg/log"
)

// Option is a decorator for `Cmd`.
type Option func(*Cmd)

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(cmd *Cmd) {
		cmd.logger = logger
	}
}

// WithEnv sets the environment, in `KEY=VALUE` form.
func WithEnv(env []string) Option {
	return func(cmd *Cmd) {
		cmd.Env = env
	}
}

// WithDir sets the working directory.
func WithDir(dir string) Option {
	return func(cmd *Cmd) {
		cmd.Dir = dir
	}
}

// WithForwardSignalDelay sets how long a received OS signal is held before it reaches the child.
func WithForwardSignalDelay(delay time.Duration) Option {
	return func(cmd *Cmd) {
		cmd.forwardSignalDelay = delay
	}
}

// WithKillDelay sets the grace period between interrupt and kill on cancellation.
func WithKillDelay(delay time.Duration) Option {
	return func(cmd *Cmd) {
		cmd.killDelay = delay
	}
}
