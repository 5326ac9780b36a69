// Package stages holds the candidate implementations of every pipeline stage and the tables they are selected
// from. Each candidate is a short sequence of program runs whose last output is parsed into the stage result.
package stages

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/xia2/xia2-go/internal/decorator"
	"github.com/xia2/xia2-go/internal/driver"
	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/logparse"
	"github.com/xia2/xia2-go/internal/stage"
	"github.com/xia2/xia2-go/pkg/log"
)

// step is one program run.
type step struct {
	executable string
	args       func(job *stage.Job) ([]string, error)
	stdin      func(job *stage.Job) ([]string, error)
	// files are written to the working directory before the run, such as XDS.INP.
	files  func(job *stage.Job) (map[string]string, error)
	checks []decorator.Check
	// ccp4 programs get logical file arguments and the CCP4 status check.
	ccp4 func(job *stage.Job, ccp4 *decorator.CCP4) error
	// ccp4Status requires the CCP4 program to report normal termination.
	ccp4Status bool
	// skip, when set and true, leaves the step out of this job.
	skip func(job *stage.Job) bool
	// output, when set, is the file in the working directory holding the text to parse instead of stdout.
	output string
}

// program is a stage implementation made of steps. The last step's output is extracted with schema.
type program struct {
	id      stage.ID
	steps   []step
	schema  logparse.Schema
	drivers stage.DriverFactory
	logger  log.Logger
}

func (prog *program) ID() stage.ID {
	return prog.id
}

func (prog *program) Run(ctx context.Context, job *stage.Job) (*logparse.Record, error) {
	if err := os.MkdirAll(job.WorkingDir, 0o755); err != nil {
		return nil, errors.New(err)
	}

	logger := prog.logger
	if job.Logger != nil {
		logger = job.Logger
	}

	var (
		lines []string
		last  driver.Handle
	)

	for i, step := range prog.steps {
		if step.skip != nil && step.skip(job) {
			continue
		}

		inner := prog.drivers.New()

		out, err := prog.runStep(ctx, job, step, i, inner, logger)
		if err != nil {
			return nil, runError(prog.id, job, inner, err)
		}

		lines = out
		last = inner
	}

	record, err := logparse.Extract(lines, prog.schema)
	if err != nil {
		return nil, runError(prog.id, job, last, err)
	}

	return record, nil
}

// runError attaches the command line and the last output of handle to err.
func runError(id stage.ID, job *stage.Job, handle driver.Handle, err error) error {
	if handle == nil || handle.Executable() == "" {
		return err
	}

	output, _ := handle.AllOutput()
	if len(output) > stage.RunErrorOutputLines {
		output = output[len(output)-stage.RunErrorOutputLines:]
	}

	return errors.New(&stage.RunError{
		ID:          id,
		Sweep:       job.Sweep.Name,
		CommandLine: shellquote.Join(append([]string{handle.Executable()}, handle.Args()...)...),
		WorkingDir:  handle.WorkingDir(),
		Output:      output,
		Err:         err,
	})
}

func (prog *program) runStep(ctx context.Context, job *stage.Job, step step, index int, inner driver.Handle, logger log.Logger) ([]string, error) {
	if step.files != nil {
		files, err := step.files(job)
		if err != nil {
			return nil, err
		}

		for name, content := range files {
			if err := os.WriteFile(filepath.Join(job.WorkingDir, name), []byte(content), 0o644); err != nil { //nolint:gosec
				return nil, errors.New(err)
			}
		}
	}

	var args, stdin []string

	if step.args != nil {
		var err error
		if args, err = step.args(job); err != nil {
			return nil, err
		}
	}

	if step.stdin != nil {
		var err error
		if stdin, err = step.stdin(job); err != nil {
			return nil, err
		}
	}

	if err := inner.Configure(step.executable, args...); err != nil {
		return nil, err
	}

	inner.SetWorkingDir(job.WorkingDir)
	inner.SetTask(prog.id.String() + " " + job.Sweep.Name)
	inner.WriteLogFile(filepath.Join(job.WorkingDir, logName(prog.id.Kind(), index, step.executable)))

	var (
		handle decorator.SuiteChecker = decorator.Decorate(inner, step.checks...)
		ccp4   *decorator.CCP4
	)

	if step.ccp4 != nil {
		ccp4 = decorator.NewCCP4(handle)
		if err := step.ccp4(job, ccp4); err != nil {
			return nil, err
		}

		handle = ccp4
	}

	for _, line := range stdin {
		if err := handle.Feed(line); err != nil {
			return nil, err
		}
	}

	logger.Debugf("Running %s", handle.Describe())

	if err := handle.Start(ctx); err != nil {
		return nil, err
	}

	if err := handle.CloseAndWait(); err != nil {
		return nil, err
	}

	if err := handle.CheckForErrors(); err != nil {
		return nil, err
	}

	if err := handle.CheckForSuiteErrors(); err != nil {
		return nil, err
	}

	if ccp4 != nil && step.ccp4Status {
		status, err := ccp4.CCP4Status()
		if err != nil {
			return nil, err
		}

		if !strings.Contains(strings.ToLower(status), "normal termination") {
			return nil, errors.New(&driver.ExternalProgramError{Program: filepath.Base(step.executable), Marker: status})
		}
	}

	if step.output == "" {
		return handle.AllOutput()
	}

	data, err := os.ReadFile(filepath.Join(job.WorkingDir, step.output))
	if err != nil {
		return nil, errors.New(&logparse.ParseError{Schema: prog.schema.Name, Marker: step.output, Reason: "output file missing: " + err.Error()})
	}

	return strings.Split(strings.TrimRight(string(data), "\n"), "\n"), nil
}

// newProgram returns a constructor that checks req and builds the program from the environment.
func newProgram(id stage.ID, req stage.Requirement, schema logparse.Schema, steps ...step) stage.Constructor {
	return func(ctx context.Context, env stage.Env) stage.Attempt {
		if env.Drivers == nil {
			return stage.FailedAttempt(errors.Errorf("%s: no driver factory", id))
		}

		logger := env.Logger
		if logger == nil {
			logger = log.Default()
		}

		return stage.Require(ctx, env, req, &program{
			id:      id,
			steps:   steps,
			schema:  schema,
			drivers: env.Drivers,
			logger:  logger.WithField(log.FieldKeyCandidate, id.String()),
		})
	}
}

// logName keeps the logs of stages sharing a sweep directory apart, such as `indexer_1_dials.import.log`.
func logName(kind stage.Kind, index int, executable string) string {
	return kind.String() + "_" + strconv.Itoa(index+1) + "_" + filepath.Base(executable) + ".log"
}

// static returns fixed arguments or stdin lines.
func static(words ...string) func(*stage.Job) ([]string, error) {
	return func(*stage.Job) ([]string, error) {
		return words, nil
	}
}
