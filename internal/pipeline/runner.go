package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/xia2/xia2-go/internal/driver"
	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/logparse"
	"github.com/xia2/xia2-go/internal/report"
	"github.com/xia2/xia2-go/internal/stage"
	"github.com/xia2/xia2-go/internal/telemetry"
	"github.com/xia2/xia2-go/internal/util"
	"github.com/xia2/xia2-go/internal/worker"
	"github.com/xia2/xia2-go/pkg/log"
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
)

// Runner drives the stages of every sweep of a project in dependency order.
type Runner struct {
	catalog    *stage.Catalog
	env        stage.Env
	logger     log.Logger
	store      *Store
	report     *report.Report
	workingDir string
	maxRetries int
	retryDelay time.Duration
	jobs       int
	failFast   bool
	defaults   map[string]string
	saveMu     sync.Mutex
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithStore checkpoints the project to store after every stage transition.
func WithStore(store *Store) RunnerOption {
	return func(runner *Runner) {
		runner.store = store
	}
}

// WithReport records one run entry per sweep and stage.
func WithReport(rpt *report.Report) RunnerOption {
	return func(runner *Runner) {
		runner.report = rpt
	}
}

// WithMaxRetries bounds how often a stage failing on the data is rerun.
func WithMaxRetries(maxRetries int) RunnerOption {
	return func(runner *Runner) {
		runner.maxRetries = maxRetries
	}
}

// WithRetryDelay sets the pause before a failed stage is rerun.
func WithRetryDelay(delay time.Duration) RunnerOption {
	return func(runner *Runner) {
		runner.retryDelay = delay
	}
}

// WithJobs sets how many sweeps are processed at once.
func WithJobs(jobs int) RunnerOption {
	return func(runner *Runner) {
		runner.jobs = jobs
	}
}

// WithWorkingDir sets the directory each sweep gets its own subdirectory of.
func WithWorkingDir(dir string) RunnerOption {
	return func(runner *Runner) {
		runner.workingDir = dir
	}
}

// WithFailFast stops sweeps that have not started once one sweep fails.
func WithFailFast() RunnerOption {
	return func(runner *Runner) {
		runner.failFast = true
	}
}

// WithDefaultParams gives every stage run params it has no value of its own for, such as `nproc`.
func WithDefaultParams(params map[string]string) RunnerOption {
	return func(runner *Runner) {
		runner.defaults = params
	}
}

// NewRunner returns a runner selecting implementations from catalog.
func NewRunner(catalog *stage.Catalog, env stage.Env, logger log.Logger, opts ...RunnerOption) *Runner {
	runner := &Runner{
		catalog:    catalog,
		env:        env,
		logger:     logger,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		jobs:       1,
		workingDir: ".",
	}

	for _, opt := range opts {
		opt(runner)
	}

	if runner.env.Logger == nil {
		runner.env.Logger = logger
	}

	return runner
}

// Run processes every sweep of project until its scaler is valid. Sweeps run concurrently, each on its own
// copy of the project preferences. The errors of all failed sweeps are returned together.
func (runner *Runner) Run(ctx context.Context, project *Project) error {
	if err := project.Preferences().Validate(); err != nil {
		return err
	}

	var opts []worker.Option
	if runner.failFast {
		opts = append(opts, worker.WithFailFast())
	}

	pool := worker.NewWorkerPool(ctx, runner.jobs, opts...)

	for _, state := range project.Sweeps() {
		if !pool.Submit(func(ctx context.Context) error {
			return runner.RunSweep(ctx, project, state)
		}) {
			runner.logger.Warnf("Sweep %s not started: processing is stopping", state.Name())
		}
	}

	return pool.Wait()
}

// RunSweep runs the stages of one sweep that are not valid yet.
func (runner *Runner) RunSweep(ctx context.Context, project *Project, state *SweepState) error {
	logger := runner.logger.WithField(log.FieldKeySweep, state.Name())
	prefs := project.Preferences()

	for _, kind := range stage.Kinds {
		var err error

		if prefs, err = runner.runStage(ctx, project, state, kind, prefs, logger); err != nil {
			return err
		}
	}

	logger.Infof("Sweep %s accepted", state.Name())

	return nil
}

// runStage brings kind to Valid, or leaves it unconfigured when it is optional and nothing can run it. It returns
// prefs updated with whatever the chosen candidate implies for later stages.
func (runner *Runner) runStage(ctx context.Context, project *Project, state *SweepState, kind stage.Kind, prefs stage.Preferences, logger log.Logger) (stage.Preferences, error) {
	logger = logger.WithField(log.FieldKeyStage, kind.String())
	table := runner.catalog.Table(kind)
	slot := state.Slot(kind)

	switch {
	case slot.Status == Valid:
		if entry, ok := table.Lookup(slot.Candidate); ok {
			prefs = prefs.Fill(entry.Implies)
		}

		logger.Debugf("%s %s still valid", kind, slot.Candidate.Name())
		runner.endRun(state, kind, report.WithResult(report.ResultCached), report.WithCandidate(slot.Candidate.Name()))

		return prefs, nil
	case slot.Status == Absent && slot.NotConfigured && prefs.Get(kind) == stage.None:
		runner.endRun(state, kind, report.WithResult(report.ResultSkipped), report.WithReason(report.ReasonNotConfigured))

		return prefs, nil
	}

	runner.startRun(state, kind)

	selection, err := table.Select(ctx, prefs.Get(kind), runner.env)
	if err != nil {
		return prefs, runner.selectionFailed(state, kind, selection, err)
	}

	if selection.Outcome == stage.NoneAvailable {
		if kind != stage.Refiner {
			err := errors.New(&ToolchainUnavailableError{Sweep: state.Name(), Kind: kind, Tried: selection.Tried})
			runner.endRun(state, kind, report.WithResult(report.ResultFailed), report.WithReason(report.ReasonToolchainUnavailable), report.WithCause(err.Error()))

			return prefs, err
		}

		logger.Infof("No %s available, continuing without one", kind)

		if err := state.SkipStage(kind); err != nil {
			return prefs, err
		}

		runner.endRun(state, kind, report.WithResult(report.ResultSkipped), report.WithReason(report.ReasonNotConfigured))

		return prefs, runner.checkpoint(project)
	}

	prefs = prefs.Fill(selection.Implies)
	logger = logger.WithField(log.FieldKeyCandidate, selection.ID.Name())

	if slot.NotConfigured {
		if changed := state.Reconfigure(kind); len(changed) > 0 {
			logger.Infof("%s now configured, rerunning %v", kind, changed)
		}
	}

	// A stage left pending by an interrupted run is resumed with the same candidate, or failed over to the new one.
	if slot.Status == Pending && slot.Candidate != selection.ID {
		if _, err := state.Fail(kind, errors.Errorf("interrupted")); err != nil {
			return prefs, err
		}
	}

	attempts := 0

	err = util.DoWithRetry(ctx, kind.String()+" "+selection.ID.Name()+" on "+state.Name(), runner.maxRetries, runner.retryDelay, logger, func(ctx context.Context, attempt int) error {
		attempts = attempt

		return runner.attempt(ctx, project, state, kind, selection, attempt, logger)
	})

	return prefs, runner.finishStage(state, kind, selection.ID, attempts, err)
}

// attempt runs the selected implementation once. Failures on the data are returned for a retry; anything else
// is fatal.
func (runner *Runner) attempt(ctx context.Context, project *Project, state *SweepState, kind stage.Kind, selection stage.Selection, attempt int, logger log.Logger) error {
	if state.Status(kind) != Pending {
		if err := state.Select(kind, selection.ID); err != nil {
			return &util.FatalError{Underlying: err}
		}
	}

	job := &stage.Job{
		Sweep:      state.Sweep(),
		Params:     runner.params(state, kind),
		Upstream:   state.UpstreamResults(kind),
		WorkingDir: filepath.Join(runner.workingDir, state.Name()),
		Logger:     logger,
	}

	attrs := map[string]any{
		"sweep":     state.Name(),
		"stage":     kind.String(),
		"candidate": selection.ID.Name(),
		"attempt":   attempt,
	}

	var record *logparse.Record

	runErr := telemetry.TelemeterFromContext(ctx).Collect(ctx, "stage_run", attrs, func(ctx context.Context) error {
		var err error

		record, err = selection.Impl.Run(ctx, job)

		return err
	})

	if runErr != nil {
		if _, err := state.Fail(kind, runErr); err != nil {
			return &util.FatalError{Underlying: err}
		}

		if err := runner.checkpoint(project); err != nil {
			return &util.FatalError{Underlying: err}
		}

		if !Retryable(runErr) {
			return &util.FatalError{Underlying: runErr}
		}

		return runErr
	}

	if err := state.Accept(kind, record); err != nil {
		return &util.FatalError{Underlying: err}
	}

	if err := runner.checkpoint(project); err != nil {
		return &util.FatalError{Underlying: err}
	}

	logger.Infof("%s %s finished on attempt %d", kind, selection.ID.Name(), attempt)

	return nil
}

// finishStage reports the stage and turns the retry outcome into the error callers match on.
func (runner *Runner) finishStage(state *SweepState, kind stage.Kind, id stage.ID, attempts int, err error) error {
	if err == nil {
		opts := []report.EndOption{report.WithCandidate(id.Name()), report.WithAttempts(attempts)}
		if attempts > 1 {
			opts = append(opts, report.WithReason(report.ReasonRetrySucceeded))
		}

		runner.endRun(state, kind, opts...)

		return nil
	}

	var (
		maxRetriesErr   *util.MaxRetriesExceeded
		notAvailableErr *driver.NotAvailableError
		reason          = report.ReasonRunError
	)

	switch {
	case errors.As(err, &maxRetriesErr):
		err = errors.New(&RetriesExhaustedError{Sweep: state.Name(), Kind: kind, Candidate: id, Attempts: attempts, Err: maxRetriesErr.Err})
		reason = report.ReasonRetriesExhausted
	case errors.As(err, &notAvailableErr):
		err = errors.New(&ToolchainUnavailableError{Sweep: state.Name(), Kind: kind, Err: err})
		reason = report.ReasonToolchainUnavailable
	case errors.IsContextCanceled(err):
		reason = report.ReasonCancelled
	}

	runner.endRun(state, kind,
		report.WithResult(report.ResultFailed),
		report.WithReason(reason),
		report.WithCause(err.Error()),
		report.WithCandidate(id.Name()),
		report.WithAttempts(attempts),
	)

	return err
}

func (runner *Runner) selectionFailed(state *SweepState, kind stage.Kind, selection stage.Selection, err error) error {
	var preselectedErr *stage.PreselectedNotAvailableError

	reason := report.ReasonRunError

	if errors.As(err, &preselectedErr) {
		err = errors.New(&ToolchainUnavailableError{Sweep: state.Name(), Kind: kind, Tried: selection.Tried, Err: err})
		reason = report.ReasonToolchainUnavailable
	}

	runner.endRun(state, kind, report.WithResult(report.ResultFailed), report.WithReason(reason), report.WithCause(err.Error()))

	return err
}

// Retryable reports whether err is a failure on the data, which a rerun may get past.
func Retryable(err error) bool {
	var (
		parseErr   *logparse.ParseError
		programErr *driver.ExternalProgramError
	)

	return errors.As(err, &parseErr) || errors.As(err, &programErr)
}

func (runner *Runner) params(state *SweepState, kind stage.Kind) map[string]string {
	params := state.Params(kind)
	if params == nil {
		params = make(map[string]string, len(runner.defaults))
	}

	for name, value := range runner.defaults {
		if _, ok := params[name]; !ok {
			params[name] = value
		}
	}

	return params
}

func (runner *Runner) checkpoint(project *Project) error {
	if runner.store == nil {
		return nil
	}

	runner.saveMu.Lock()
	defer runner.saveMu.Unlock()

	return runner.store.Save(project)
}

func (runner *Runner) startRun(state *SweepState, kind stage.Kind) {
	if runner.report != nil {
		runner.report.EnsureRun(state.Name(), kind.String())
	}
}

func (runner *Runner) endRun(state *SweepState, kind stage.Kind, opts ...report.EndOption) {
	if runner.report == nil {
		return
	}

	runner.report.EnsureRun(state.Name(), kind.String())

	if err := runner.report.EndRun(state.Name(), kind.String(), opts...); err != nil {
		runner.logger.Warnf("Recording %s of sweep %s: %v", kind, state.Name(), err)
	}
}
