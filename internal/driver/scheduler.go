package driver

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/os/exec"
	"github.com/xia2/xia2-go/pkg/log"
)

// Scheduler runs written job scripts somewhere other than in-process.
type Scheduler interface {
	// Submit queues the script and returns a job identifier.
	Submit(ctx context.Context, script Script, cpuThreads int) (string, error)
	// Done reports whether the job has left the queue.
	Done(ctx context.Context, jobID string) (bool, error)
	// Cancel removes the job from the queue, best effort.
	Cancel(ctx context.Context, jobID string) error
	// Inspect looks at the scheduler's own records of a finished job and reports conditions such as a missing
	// executable on the execution host.
	Inspect(jobID string, script Script) error
}

// CommandRunner runs a scheduler command in dir and returns its combined output.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// RunCommand is the CommandRunner used outside tests.
func RunCommand(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	var out bytes.Buffer

	cmd := exec.Command(name, args...)
	cmd.Configure(exec.WithDir(dir))
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Start(); err != nil {
		return nil, classifySpawnError(name, err)
	}

	stop := cmd.RegisterGracefullyShutdown(ctx)
	defer stop()

	if err := cmd.Wait(); err != nil {
		return out.Bytes(), errors.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(out.String()))
	}

	return out.Bytes(), nil
}

// ShellScheduler runs each job script as a background bash process on this host.
type ShellScheduler struct {
	logger log.Logger
	jobs   *xsync.MapOf[string, *shellJob]
}

type shellJob struct {
	cmd  *exec.Cmd
	done chan struct{}
}

// NewShellScheduler returns a ShellScheduler.
func NewShellScheduler(logger log.Logger) *ShellScheduler {
	if logger == nil {
		logger = log.Default()
	}

	return &ShellScheduler{
		logger: logger,
		jobs:   xsync.NewMapOf[string, *shellJob](),
	}
}

// Submit implements Scheduler.
func (scheduler *ShellScheduler) Submit(_ context.Context, script Script, _ int) (string, error) {
	shell, err := LookPath("bash")
	if err != nil {
		return "", err
	}

	cmd := exec.Command(shell, script.Path())
	cmd.Configure(exec.WithDir(script.Dir), exec.WithLogger(scheduler.logger))

	if err := cmd.Start(); err != nil {
		return "", classifySpawnError(shell, err)
	}

	job := &shellJob{cmd: cmd, done: make(chan struct{})}
	jobID := uuid.NewString()

	go func() {
		_ = cmd.Wait()

		close(job.done)
	}()

	scheduler.jobs.Store(jobID, job)

	return jobID, nil
}

// Done implements Scheduler.
func (scheduler *ShellScheduler) Done(_ context.Context, jobID string) (bool, error) {
	job, ok := scheduler.jobs.Load(jobID)
	if !ok {
		return false, errors.Errorf("unknown job %s", jobID)
	}

	select {
	case <-job.done:
		scheduler.jobs.Delete(jobID)
		return true, nil
	default:
		return false, nil
	}
}

// Cancel implements Scheduler.
func (scheduler *ShellScheduler) Cancel(ctx context.Context, jobID string) error {
	job, ok := scheduler.jobs.LoadAndDelete(jobID)
	if !ok {
		return nil
	}

	job.cmd.Terminate(ctx)
	<-job.done

	return nil
}

// Inspect implements Scheduler. The background shell reports everything through the status file.
func (scheduler *ShellScheduler) Inspect(string, Script) error {
	return nil
}

var (
	sgeJobIDRe    = regexp.MustCompile(`Your job (\d+)`)
	sgeJobGoneMsg = "Following jobs do not exist"
)

// SGEScheduler submits jobs to Sun Grid Engine with `qsub` and polls them with `qstat -j`.
type SGEScheduler struct {
	submit []string
	run    CommandRunner
	logger log.Logger
}

// NewSGEScheduler parses qsubCommand (for example `qsub -q all.q`) into the submission command line.
func NewSGEScheduler(qsubCommand string, run CommandRunner, logger log.Logger) (*SGEScheduler, error) {
	if strings.TrimSpace(qsubCommand) == "" {
		qsubCommand = "qsub"
	}

	words, err := shlex.Split(qsubCommand)
	if err != nil {
		return nil, errors.New(&ConfigurationError{Msg: "cannot parse qsub command " + strconv.Quote(qsubCommand) + ": " + err.Error()})
	}

	if run == nil {
		run = RunCommand
	}

	if logger == nil {
		logger = log.Default()
	}

	return &SGEScheduler{submit: words, run: run, logger: logger}, nil
}

// Submit implements Scheduler.
func (scheduler *SGEScheduler) Submit(ctx context.Context, script Script, cpuThreads int) (string, error) {
	args := append([]string(nil), scheduler.submit[1:]...)
	args = append(args, "-V", "-cwd")

	if cpuThreads > 1 {
		args = append(args, "-pe", "smp", strconv.Itoa(cpuThreads))
	}

	args = append(args, script.Path())

	out, err := scheduler.run(ctx, script.Dir, scheduler.submit[0], args...)
	if err != nil {
		return "", err
	}

	match := sgeJobIDRe.FindSubmatch(out)
	if match == nil {
		return "", errors.Errorf("cannot find job id in %s output: %s", scheduler.submit[0], strings.TrimSpace(string(out)))
	}

	jobID := string(match[1])
	scheduler.logger.WithField(log.FieldKeyJob, jobID).Debugf("Submitted %s", script.Path())

	return jobID, nil
}

// Done implements Scheduler.
func (scheduler *SGEScheduler) Done(ctx context.Context, jobID string) (bool, error) {
	out, err := scheduler.run(ctx, "", "qstat", "-j", jobID)
	if bytes.Contains(out, []byte(sgeJobGoneMsg)) {
		return true, nil
	}

	if err != nil {
		return false, err
	}

	return false, nil
}

// Cancel implements Scheduler.
func (scheduler *SGEScheduler) Cancel(ctx context.Context, jobID string) error {
	_, err := scheduler.run(ctx, "", "qdel", jobID)
	return err
}

// Inspect implements Scheduler. SGE writes the job's own stderr to `<script>.e<id>` in the working directory.
func (scheduler *SGEScheduler) Inspect(jobID string, script Script) error {
	path := filepath.Join(script.Dir, filepath.Base(script.Path())+".e"+jobID)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return errors.New(err)
	}

	defer os.Remove(path) //nolint:errcheck

	for _, line := range strings.Split(string(data), "\n") {
		if strings.Contains(line, "command not found") {
			return errors.New(&NotAvailableError{Executable: script.Executable, Reason: strings.TrimSpace(line)})
		}
	}

	return nil
}
