package run

import (
	"context"
	"path/filepath"
	"strconv"

	"github.com/xia2/xia2-go/internal/config"
	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/pipeline"
	"github.com/xia2/xia2-go/internal/report"
	"github.com/xia2/xia2-go/internal/stage"
	"github.com/xia2/xia2-go/internal/telemetry"
	"github.com/xia2/xia2-go/options"
	"github.com/xia2/xia2-go/pkg/log"
)

// Run processes every sweep of the project file until it is accepted or fails. The project state is saved after
// every stage, so a later run picks up where this one stopped.
func Run(ctx context.Context, l log.Logger, opts *options.Options, cmdOpts *Options) error {
	settings := opts.Settings

	format, err := cmdOpts.format()
	if err != nil {
		return errors.New(&config.ConfigurationError{Problems: []string{err.Error()}})
	}

	projectFile, err := config.LoadProject(settings.Project)
	if err != nil {
		return err
	}

	defs, err := projectFile.Definitions()
	if err != nil {
		return err
	}

	store := opts.Store()
	if err := store.Lock(ctx); err != nil {
		return err
	}

	defer func() {
		if err := store.Unlock(); err != nil {
			l.Warnf("Releasing the lock of %s: %v", settings.WorkingDir, err)
		}
	}()

	project, err := store.Load(projectFile.Name)
	if err != nil {
		return err
	}

	if err := Prepare(l, project, defs, settings.Preferences()); err != nil {
		return err
	}

	if err := store.Save(project); err != nil {
		return err
	}

	catalog, err := opts.Catalog()
	if err != nil {
		return err
	}

	env, err := opts.StageEnv(l)
	if err != nil {
		return err
	}

	r := report.NewReport(
		report.WithWorkingDir(settings.WorkingDir),
		report.WithFormat(format),
		report.WithShouldColor(opts.ShouldColor()),
	)

	runnerOpts := []pipeline.RunnerOption{
		pipeline.WithStore(store),
		pipeline.WithReport(r),
		pipeline.WithMaxRetries(settings.MaxRetries),
		pipeline.WithRetryDelay(opts.RetryDelay),
		pipeline.WithJobs(settings.NJob),
		pipeline.WithWorkingDir(settings.WorkingDir),
		pipeline.WithDefaultParams(map[string]string{"nproc": strconv.Itoa(settings.NProc)}),
	}

	if cmdOpts.FailFast {
		runnerOpts = append(runnerOpts, pipeline.WithFailFast())
	}

	runner := pipeline.NewRunner(catalog, env, l, runnerOpts...)

	l.Infof("Processing %d sweeps of project %s with %s", len(defs), project.Name(), project.Preferences())

	attrs := map[string]any{
		"project": project.Name(),
		"sweeps":  len(defs),
		"driver":  string(settings.Driver),
	}

	runErr := telemetry.TelemeterFromContext(ctx).Collect(ctx, "xia2_run", attrs, func(ctx context.Context) error {
		return runner.Run(ctx, project)
	})

	errs := &errors.MultiError{}
	errs = errs.Append(runErr)

	if cmdOpts.ReportFile != "" {
		if err := r.WriteToFile(cmdOpts.ReportFile); err != nil {
			errs = errs.Append(err)
		}
	}

	if cmdOpts.ReportSchemaFile != "" {
		if err := writeSchema(settings.WorkingDir, cmdOpts.ReportSchemaFile); err != nil {
			errs = errs.Append(err)
		}
	}

	if !cmdOpts.SummaryDisable {
		if err := r.WriteSummary(opts.Writer); err != nil {
			errs = errs.Append(err)
		}
	}

	return errs.ErrorOrNil()
}

// Prepare registers the sweeps of defs with project and applies their parameters. A stage whose result came from
// another candidate than the one now preselected for it is invalidated, along with everything downstream.
func Prepare(l log.Logger, project *pipeline.Project, defs []config.SweepDefinition, prefs stage.Preferences) error {
	if err := prefs.Validate(); err != nil {
		return err
	}

	for _, def := range defs {
		state, err := project.AddSweep(def.Sweep)
		if err != nil {
			return err
		}

		for kind, params := range def.Params {
			for name, value := range params {
				changed, err := setParameter(state, kind, name, value)
				if err != nil {
					return err
				}

				logInvalidated(l, state, changed, "%s %s changed", kind, name)
			}
		}

		for _, kind := range stage.Kinds {
			slot := state.Slot(kind)

			if id := prefs.Get(kind); id != stage.None && slot.Status == pipeline.Valid && slot.Candidate != id {
				logInvalidated(l, state, state.Invalidate(kind), "%s %s is preselected", kind, id.Name())
			}
		}
	}

	project.SetPreferences(prefs)

	return nil
}

func setParameter(state *pipeline.SweepState, kind stage.Kind, name, value string) ([]stage.Kind, error) {
	if kind != stage.Indexer || name != pipeline.ParamCell {
		return state.SetParameter(kind, name, value), nil
	}

	cell, err := pipeline.ParseCell(value)
	if err != nil {
		return nil, errors.New(&config.ConfigurationError{Problems: []string{"sweep " + state.Name() + ": " + err.Error()}})
	}

	return state.OverrideCell(cell), nil
}

func logInvalidated(l log.Logger, state *pipeline.SweepState, changed []stage.Kind, format string, args ...any) {
	if len(changed) == 0 {
		return
	}

	l.WithField(log.FieldKeySweep, state.Name()).Infof(format+": invalidated %v", append(args, changed)...)
}

func writeSchema(workingDir, path string) error {
	if !filepath.IsAbs(path) {
		path = filepath.Join(workingDir, path)
	}

	return report.WriteSchemaToFile(path)
}
