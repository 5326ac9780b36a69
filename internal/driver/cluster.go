package driver

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/pkg/log"
)

// DefaultPollInterval is how often a ClusterDriver asks the scheduler whether its job has finished.
const DefaultPollInterval = 10 * time.Second

// statusCommandNotFound is the shell's exit status when the executable cannot be found.
const statusCommandNotFound = 127

// ClusterDriver writes the invocation to a job script and hands it to a Scheduler. Start only marks the handle
// Running; CloseAndWait submits the job and blocks until the scheduler reports it gone, so callers see the same
// contract as with a LocalDriver.
type ClusterDriver struct {
	*invocation

	scheduler    Scheduler
	pollInterval time.Duration
	timeout      time.Duration
	keepFiles    bool

	ctx    context.Context //nolint:containedctx
	cancel context.CancelFunc
}

// ClusterOption configures a ClusterDriver.
type ClusterOption func(*ClusterDriver)

// WithPollInterval sets how often the scheduler is polled.
func WithPollInterval(interval time.Duration) ClusterOption {
	return func(driver *ClusterDriver) {
		if interval > 0 {
			driver.pollInterval = interval
		}
	}
}

// WithJobTimeout bounds a job, including its time in the queue.
func WithJobTimeout(timeout time.Duration) ClusterOption {
	return func(driver *ClusterDriver) {
		driver.timeout = timeout
	}
}

// WithKeepJobFiles leaves the job script and its output files in place after the handle closes.
func WithKeepJobFiles(keep bool) ClusterOption {
	return func(driver *ClusterDriver) {
		driver.keepFiles = keep
	}
}

// NewClusterDriver returns an Unstarted handle that runs through scheduler.
func NewClusterDriver(scheduler Scheduler, logger log.Logger, opts ...ClusterOption) *ClusterDriver {
	driver := &ClusterDriver{
		invocation:   newInvocation(logger),
		scheduler:    scheduler,
		pollInterval: DefaultPollInterval,
	}

	for _, opt := range opts {
		opt(driver)
	}

	return driver
}

// Start implements Handle.
func (driver *ClusterDriver) Start(ctx context.Context) error {
	driver.mu.Lock()
	defer driver.mu.Unlock()

	if driver.state != Unstarted {
		return errors.New(&InvalidStateError{Op: "start", State: driver.state})
	}

	if driver.executable == "" {
		return errors.New(&ConfigurationError{Msg: "executable must be configured before start"})
	}

	if driver.timeout > 0 {
		driver.ctx, driver.cancel = context.WithTimeout(ctx, driver.timeout)
	} else {
		driver.ctx, driver.cancel = context.WithCancel(ctx)
	}

	driver.state = Running

	return nil
}

// CloseAndWait implements Handle.
func (driver *ClusterDriver) CloseAndWait() error {
	driver.mu.Lock()

	if driver.state != Running {
		state := driver.state
		driver.mu.Unlock()

		return errors.New(&InvalidStateError{Op: "close", State: state})
	}

	script := driver.script()
	ctx, cpuThreads := driver.ctx, driver.cpuThreads
	logger := driver.logger.WithField(log.FieldKeyCommand, driver.commandLine())
	driver.mu.Unlock()

	defer driver.cancel()

	lines, exitCode, err := driver.runJob(ctx, script, cpuThreads, logger)

	if !driver.keepFiles {
		script.Cleanup()
	}

	driver.mu.Lock()
	defer driver.mu.Unlock()

	if err != nil {
		driver.fail()
		return err
	}

	driver.finish(lines, exitCode)

	return nil
}

func (driver *ClusterDriver) runJob(ctx context.Context, script Script, cpuThreads int, logger log.Logger) ([]string, int, error) {
	if err := script.Write(); err != nil {
		return nil, 0, err
	}

	jobID, err := driver.scheduler.Submit(ctx, script, cpuThreads)
	if err != nil {
		return nil, 0, err
	}

	logger = logger.WithField(log.FieldKeyJob, jobID)
	logger.Debugf("Waiting for job %s", script.Name)

	if err := driver.poll(ctx, jobID); err != nil {
		if ctx.Err() != nil {
			if cancelErr := driver.scheduler.Cancel(context.WithoutCancel(ctx), jobID); cancelErr != nil {
				logger.Warnf("Failed to cancel job: %v", cancelErr)
			}

			return nil, 0, errors.New(&CancelledError{Command: script.Executable, Err: context.Cause(ctx)})
		}

		return nil, 0, err
	}

	if err := driver.scheduler.Inspect(jobID, script); err != nil {
		return nil, 0, err
	}

	exitCode, err := readStatus(script.StatusPath())
	if err != nil {
		return nil, 0, err
	}

	lines, err := readOutput(script.OutputPath())
	if err != nil {
		return nil, 0, err
	}

	if exitCode == statusCommandNotFound {
		return nil, 0, errors.New(&NotAvailableError{Executable: script.Executable, Reason: "command not found on execution host"})
	}

	return lines, exitCode, nil
}

func (driver *ClusterDriver) poll(ctx context.Context, jobID string) error {
	ticker := time.NewTicker(driver.pollInterval)
	defer ticker.Stop()

	for {
		done, err := driver.scheduler.Done(ctx, jobID)
		if err != nil {
			return err
		}

		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// script must be called with mu held.
func (driver *ClusterDriver) script() Script {
	dir := driver.workingDir
	if dir == "" {
		dir, _ = os.Getwd()
	}

	name := "J" + filepath.Base(driver.executable) + "_" + uuid.NewString()[:8]

	return Script{
		Name:       name,
		Dir:        dir,
		Executable: driver.executable,
		Args:       append([]string(nil), driver.args...),
		Stdin:      append([]string(nil), driver.stdin...),
		Env:        driver.envChanges(),
	}
}

func readStatus(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Errorf("job finished without a status file: %w", err)
	}

	status, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, errors.Errorf("malformed status file %s: %w", path, err)
	}

	return status, nil
}

func readOutput(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("job finished without an output file: %w", err)
	}

	text := strings.TrimSuffix(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if text == "" {
		return nil, nil
	}

	return strings.Split(text, "\n"), nil
}
