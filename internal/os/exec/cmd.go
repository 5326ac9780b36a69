// Package exec runs external commands. It wraps exec.Cmd with logging, exit code extraction and
// shutdown handling tied to a context.
package exec

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/os/signal"
	"github.com/xia2/xia2-go/pkg/log"
)

// Cmd is a command type.
type Cmd struct {
	*exec.Cmd

	filename string

	logger log.Logger

	forwardSignalDelay time.Duration
	killDelay          time.Duration
	interruptSignal    os.Signal
}

// Command returns the `Cmd` struct to execute the named program with the given arguments.
// Standard streams are left unset; callers wire them.
func Command(name string, args ...string) *Cmd {
	return &Cmd{
		Cmd:             exec.Command(name, args...),
		logger:          log.Default(),
		filename:        filepath.Base(name),
		interruptSignal: signal.InterruptSignal,
	}
}

// Configure sets options to the `Cmd`.
func (cmd *Cmd) Configure(opts ...Option) {
	for _, opt := range opts {
		opt(cmd)
	}
}

// Start starts the specified command but does not wait for it to complete.
func (cmd *Cmd) Start() error {
	if err := cmd.Cmd.Start(); err != nil {
		return errors.New(err)
	}

	return nil
}

// RegisterGracefullyShutdown watches ctx while the command runs and returns a function that stops watching.
//  1. If ctx was cancelled because the process received an OS signal, the child most likely received it too,
//     so the signal is forwarded after forwardSignalDelay, or at once if it arrives again.
//  2. Otherwise the cancellation is a timeout or an internal failure: the child is interrupted and killed
//     after killDelay.
func (cmd *Cmd) RegisterGracefullyShutdown(ctx context.Context) func() {
	ctxShutdown, cancelShutdown := context.WithCancel(context.Background())

	go func() {
		select {
		case <-ctxShutdown.Done():
		case <-ctx.Done():
			if cause := new(signal.ContextCanceledCause); errors.As(context.Cause(ctx), &cause) && cause.Signal != nil {
				cmd.ForwardSignal(ctxShutdown, cause.Signal)

				return
			}

			cmd.Terminate(ctxShutdown)
		}
	}()

	return cancelShutdown
}

// ForwardSignal forwards a given `sig` with a delay if cmd.forwardSignalDelay is greater than 0,
// and if the same signal is received again, it is forwarded immediately.
func (cmd *Cmd) ForwardSignal(ctx context.Context, sig os.Signal) {
	ctxDelay, cancelDelay := context.WithCancel(ctx)
	defer cancelDelay()

	signal.NotifierWithContext(ctxDelay, func(_ os.Signal) {
		cancelDelay()
	}, sig)

	if cmd.forwardSignalDelay > 0 {
		cmd.logger.Debugf("%s signal will be forwarded to %s with delay %s",
			signalName(sig),
			cmd.filename,
			cmd.forwardSignalDelay,
		)
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(cmd.forwardSignalDelay):
	case <-ctxDelay.Done():
	}

	cmd.SendSignal(sig)
}

// Terminate interrupts the process and kills it once killDelay has passed. A zero killDelay kills at once.
func (cmd *Cmd) Terminate(ctx context.Context) {
	if cmd.Process == nil {
		return
	}

	if cmd.killDelay > 0 && cmd.interruptSignal != nil {
		cmd.SendSignal(cmd.interruptSignal)

		select {
		case <-ctx.Done():
			return
		case <-time.After(cmd.killDelay):
		}
	}

	cmd.logger.Debugf("Killing %s (pid %d)", cmd.filename, cmd.Process.Pid)

	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		cmd.logger.Errorf("Failed to kill %s: %v", cmd.filename, err)
	}
}

// SendSignal sends the given `sig` to the executed command.
func (cmd *Cmd) SendSignal(sig os.Signal) {
	if cmd.Process == nil {
		return
	}

	cmd.logger.Debugf("%s signal is forwarded to %s", signalName(sig), cmd.filename)

	if err := cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		cmd.logger.Errorf("Failed to forward signal %s to %s: %v", sig, cmd.filename, err)
	}
}

// ExitCode returns the exit code carried by err, which is expected to come from Wait.
func ExitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}

	return 0, err
}

func signalName(sig os.Signal) string {
	return cases.Title(language.English).String(sig.String())
}
