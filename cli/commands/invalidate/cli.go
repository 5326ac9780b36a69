// Package invalidate provides the command forcing stages of sweeps to run again.
package invalidate

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/gobwas/glob"
	"github.com/urfave/cli/v2"

	"github.com/xia2/xia2-go/internal/config"
	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/pipeline"
	"github.com/xia2/xia2-go/internal/stage"
	"github.com/xia2/xia2-go/options"
	"github.com/xia2/xia2-go/pkg/log"
)

const (
	CommandName = "invalidate"

	SweepFlagName = "sweep"
	StageFlagName = "stage"
	CellFlagName  = "cell"
	ParamFlagName = "param"
)

// Options are the flags of the invalidate command.
type Options struct {
	Sweep  string
	Stage  string
	Cell   string
	Params cli.StringSlice
}

// NewCommand returns the invalidate command.
func NewCommand(opts *options.Options) *cli.Command {
	cmdOpts := &Options{}

	return &cli.Command{
		Name:      CommandName,
		Usage:     "Invalidate a stage of the matching sweeps, and every stage downstream of it.",
		UsageText: "xia2 [global options] invalidate --sweep SWEEP1 (--stage integrater | --cell a,b,c,alpha,beta,gamma | --param integrater.d_min=1.8)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        SweepFlagName,
				Usage:       "Name or glob pattern of the sweeps, such as SWEEP* .",
				Value:       "*",
				Destination: &cmdOpts.Sweep,
			},
			&cli.StringFlag{
				Name:        StageFlagName,
				Usage:       "Stage to invalidate: " + strings.Join(kindNames(), ", ") + ".",
				Destination: &cmdOpts.Stage,
			},
			&cli.StringFlag{
				Name:        CellFlagName,
				Usage:       "Unit cell the indexer must use. Invalidates the indexer and everything downstream.",
				Destination: &cmdOpts.Cell,
			},
			&cli.StringSliceFlag{
				Name:        ParamFlagName,
				Usage:       "Sets a stage parameter as STAGE.NAME=VALUE. An empty value removes it.",
				Destination: &cmdOpts.Params,
			},
		},
		Action: func(c *cli.Context) error {
			return Run(opts.Context(c.Context, opts.Logger), opts.Logger, opts, cmdOpts)
		},
	}
}

// change is one modification of the state of a sweep.
type change struct {
	apply       func(state *pipeline.SweepState) []stage.Kind
	description string
}

// Run applies the requested changes to every matching sweep and saves the project.
func Run(ctx context.Context, l log.Logger, opts *options.Options, cmdOpts *Options) error {
	changes, err := cmdOpts.changes()
	if err != nil {
		return err
	}

	pattern, err := glob.Compile(cmdOpts.Sweep)
	if err != nil {
		return errors.New(&config.ConfigurationError{Problems: []string{fmt.Sprintf("sweep pattern %q: %v", cmdOpts.Sweep, err)}})
	}

	store := opts.Store()
	if err := store.Lock(ctx); err != nil {
		return err
	}

	defer func() {
		if err := store.Unlock(); err != nil {
			l.Warnf("Releasing the lock of %s: %v", opts.Settings.WorkingDir, err)
		}
	}()

	project, err := store.Load(options.AppName)
	if err != nil {
		return err
	}

	matched := 0

	for _, state := range project.Sweeps() {
		if !pattern.Match(state.Name()) {
			continue
		}

		matched++

		var invalidated []stage.Kind

		for _, change := range changes {
			changed := change.apply(state)
			l.WithField(log.FieldKeySweep, state.Name()).Debugf("%s: invalidated %v", change.description, changed)
			invalidated = appendKinds(invalidated, changed...)
		}

		fmt.Fprintf(opts.Writer, "%s: %s\n", state.Name(), describe(invalidated))
	}

	if matched == 0 {
		return errors.New(&pipeline.UnknownSweepError{Name: cmdOpts.Sweep})
	}

	return store.Save(project)
}

func (cmdOpts *Options) changes() ([]change, error) {
	var (
		changes  []change
		problems []string
	)

	if cmdOpts.Cell != "" {
		cell, err := pipeline.ParseCell(cmdOpts.Cell)
		if err != nil {
			problems = append(problems, err.Error())
		}

		changes = append(changes, change{
			description: "unit cell overridden",
			apply:       func(state *pipeline.SweepState) []stage.Kind { return state.OverrideCell(cell) },
		})
	}

	for _, param := range cmdOpts.Params.Value() {
		kind, name, value, err := parseParam(param)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}

		changes = append(changes, change{
			description: fmt.Sprintf("%s %s set", kind, name),
			apply:       func(state *pipeline.SweepState) []stage.Kind { return state.SetParameter(kind, name, value) },
		})
	}

	if cmdOpts.Stage != "" {
		kind, err := stage.ParseKind(cmdOpts.Stage)
		if err != nil {
			problems = append(problems, err.Error())
		}

		changes = append(changes, change{
			description: kind.String() + " invalidated",
			apply:       func(state *pipeline.SweepState) []stage.Kind { return state.Invalidate(kind) },
		})
	}

	if len(changes) == 0 {
		problems = append(problems, "nothing to invalidate: set --stage, --cell or --param")
	}

	if len(problems) > 0 {
		return nil, errors.New(&config.ConfigurationError{Problems: problems})
	}

	return changes, nil
}

// parseParam splits `integrater.d_min=1.8`.
func parseParam(param string) (stage.Kind, string, string, error) {
	key, value, ok := strings.Cut(param, "=")
	if !ok {
		return 0, "", "", errors.Errorf("parameter %q: want STAGE.NAME=VALUE", param)
	}

	kindName, name, ok := strings.Cut(key, ".")
	if !ok || name == "" {
		return 0, "", "", errors.Errorf("parameter %q: want STAGE.NAME=VALUE", param)
	}

	kind, err := stage.ParseKind(kindName)
	if err != nil {
		return 0, "", "", err
	}

	return kind, name, value, nil
}

func appendKinds(kinds []stage.Kind, more ...stage.Kind) []stage.Kind {
	for _, kind := range more {
		if !slices.Contains(kinds, kind) {
			kinds = append(kinds, kind)
		}
	}

	return kinds
}

func describe(kinds []stage.Kind) string {
	if len(kinds) == 0 {
		return "nothing invalidated"
	}

	names := make([]string, len(kinds))
	for i, kind := range kinds {
		names[i] = kind.String()
	}

	return "invalidated " + strings.Join(names, ", ")
}

func kindNames() []string {
	names := make([]string, len(stage.Kinds))
	for i, kind := range stage.Kinds {
		names[i] = kind.String()
	}

	return names
}
