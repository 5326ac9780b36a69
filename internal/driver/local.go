package driver

import (
	"bufio"
	"context"
	"io"
	"io/fs"
	"os"
	osexec "os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/os/exec"
	"github.com/xia2/xia2-go/pkg/log"
)

// LocalDriver runs the program as a child process on this host.
type LocalDriver struct {
	*invocation

	timeout   time.Duration
	killDelay time.Duration

	cmd          *exec.Cmd
	stdinPipe    io.WriteCloser
	outputReader *os.File
	readDone     chan []string
	ctx          context.Context //nolint:containedctx
	cancel       context.CancelFunc
	stopShutdown func()

	// wrapStdin replaces the input pipe, so failing writes can be simulated.
	wrapStdin func(io.WriteCloser) io.WriteCloser
}

// LocalOption configures a LocalDriver.
type LocalOption func(*LocalDriver)

// WithTimeout bounds a run; zero means no limit.
func WithTimeout(timeout time.Duration) LocalOption {
	return func(driver *LocalDriver) {
		driver.timeout = timeout
	}
}

// WithKillDelay gives the program time to exit after an interrupt before it is killed.
func WithKillDelay(delay time.Duration) LocalOption {
	return func(driver *LocalDriver) {
		driver.killDelay = delay
	}
}

// NewLocalDriver returns an Unstarted local handle.
func NewLocalDriver(logger log.Logger, opts ...LocalOption) *LocalDriver {
	driver := &LocalDriver{invocation: newInvocation(logger)}

	for _, opt := range opts {
		opt(driver)
	}

	return driver
}

// Feed buffers the line and, once the program is running, writes it straight away.
func (driver *LocalDriver) Feed(line string) error {
	driver.mu.Lock()
	defer driver.mu.Unlock()

	switch driver.state {
	case Unstarted:
		driver.stdin = append(driver.stdin, line)
		return nil
	case Running:
		driver.stdin = append(driver.stdin, line)

		if err := driver.writeStdin(line); err != nil {
			driver.abort()
			return err
		}

		return nil
	default:
		return errors.New(&InvalidStateError{Op: "feed input", State: driver.state})
	}
}

// Start spawns the program with stdout and stderr sharing one pipe, then writes the buffered stdin lines.
func (driver *LocalDriver) Start(ctx context.Context) error {
	driver.mu.Lock()
	defer driver.mu.Unlock()

	if driver.state != Unstarted {
		return errors.New(&InvalidStateError{Op: "start", State: driver.state})
	}

	if driver.executable == "" {
		return errors.New(&ConfigurationError{Msg: "executable must be configured before start"})
	}

	searchPath, _ := driver.envLookup("PATH")

	path, err := LookPathIn(driver.executable, searchPath)
	if err != nil {
		driver.fail()
		return err
	}

	cmd := exec.Command(path, driver.args...)
	cmd.Configure(
		exec.WithLogger(driver.logger),
		exec.WithDir(driver.workingDir),
		exec.WithEnv(driver.environ()),
		exec.WithKillDelay(driver.killDelay),
	)

	reader, writer, err := os.Pipe()
	if err != nil {
		driver.fail()
		return errors.New(err)
	}

	cmd.Stdout = writer
	cmd.Stderr = writer

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		closeQuietly(reader, writer)
		driver.fail()

		return errors.New(err)
	}

	if driver.wrapStdin != nil {
		stdinPipe = driver.wrapStdin(stdinPipe)
	}

	driver.logger.Debugf("Running %s", driver.commandLine())

	if err := cmd.Start(); err != nil {
		closeQuietly(reader, writer)
		driver.fail()

		return classifySpawnError(driver.executable, err)
	}

	// The child holds its own copy of the write end; ours must go so the reader sees EOF.
	closeQuietly(writer)

	if driver.timeout > 0 {
		driver.ctx, driver.cancel = context.WithTimeout(ctx, driver.timeout)
	} else {
		driver.ctx, driver.cancel = context.WithCancel(ctx)
	}

	driver.cmd = cmd
	driver.stdinPipe = stdinPipe
	driver.outputReader = reader
	driver.readDone = make(chan []string, 1)
	driver.stopShutdown = cmd.RegisterGracefullyShutdown(driver.ctx)
	driver.state = Running

	go readLines(reader, driver.readDone)

	for _, line := range driver.stdin {
		if err := driver.writeStdin(line); err != nil {
			driver.abort()
			return err
		}
	}

	return nil
}

// CloseAndWait closes stdin, collects the output until EOF and waits for the program to exit. A non-zero exit
// status is recorded, not returned.
func (driver *LocalDriver) CloseAndWait() error {
	driver.mu.Lock()

	if driver.state != Running {
		state := driver.state
		driver.mu.Unlock()

		return errors.New(&InvalidStateError{Op: "close", State: state})
	}

	closeQuietly(driver.stdinPipe)

	ctx, cmd, reader, readDone := driver.ctx, driver.cmd, driver.outputReader, driver.readDone
	driver.mu.Unlock()

	var lines []string

	select {
	case lines = <-readDone:
	case <-ctx.Done():
		// Descendants may keep the pipe open after the program is killed.
		closeQuietly(reader)

		<-readDone
	}

	closeQuietly(reader)

	waitErr := cmd.Wait()
	cancelled := ctx.Err() != nil
	cause := context.Cause(ctx)

	driver.stopShutdown()
	driver.cancel()

	driver.mu.Lock()
	defer driver.mu.Unlock()

	if cancelled {
		driver.fail()
		return errors.New(&CancelledError{Command: driver.commandLine(), Err: cause})
	}

	exitCode, err := exec.ExitCode(waitErr)
	if err != nil {
		driver.fail()
		return errors.New(err)
	}

	if exitCode != 0 {
		driver.logger.Debugf("%s exited with status %d", driver.executable, exitCode)
	}

	driver.finish(lines, exitCode)

	return nil
}

// abort kills a running program whose input could not be written and marks the handle Failed. Must be called
// with mu held.
func (driver *LocalDriver) abort() {
	driver.stopShutdown()
	driver.cancel()

	if driver.cmd.Process != nil {
		_ = driver.cmd.Process.Kill()
	}

	closeQuietly(driver.stdinPipe, driver.outputReader)
	<-driver.readDone

	_ = driver.cmd.Wait()

	driver.fail()
}

// writeStdin must be called with mu held. A program that exits without reading its input is not an error here;
// its output decides the outcome.
func (driver *LocalDriver) writeStdin(line string) error {
	if _, err := io.WriteString(driver.stdinPipe, line+"\n"); err != nil {
		if errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed) || errors.Is(err, fs.ErrClosed) {
			driver.logger.Tracef("%s closed its input early", driver.executable)
			return nil
		}

		return errors.New(err)
	}

	return nil
}

func readLines(reader io.Reader, done chan<- []string) {
	var lines []string

	buffered := bufio.NewReaderSize(reader, 64*1024)

	for {
		line, err := buffered.ReadString('\n')
		if line != "" {
			lines = append(lines, strings.TrimRight(line, "\r\n"))
		}

		if err != nil {
			break
		}
	}

	done <- lines
}

func classifySpawnError(executable string, err error) error {
	if errors.Is(err, osexec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return errors.New(&NotAvailableError{Executable: executable, Err: err})
	}

	return errors.New(err)
}

func closeQuietly(closers ...io.Closer) {
	for _, closer := range closers {
		if closer != nil {
			_ = closer.Close()
		}
	}
}
