// Package options holds everything one xia2 invocation runs with: the resolved settings, the output writers and
// the pieces commands build their pipeline from.
package options

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/xia2/xia2-go/internal/config"
	"github.com/xia2/xia2-go/internal/driver"
	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/pipeline"
	"github.com/xia2/xia2-go/internal/stage"
	"github.com/xia2/xia2-go/internal/stages"
	"github.com/xia2/xia2-go/internal/telemetry"
	"github.com/xia2/xia2-go/pkg/log"
)

const (
	// AppName is the name the CLI and its traces go by.
	AppName = "xia2"

	// ErrorFileName is the diagnostic written to the working directory when xia2 exits with an error.
	ErrorFileName = "xia2.error"
)

// Options are the options of one invocation. They are filled in by the global flags before a command runs.
type Options struct {
	Writer    io.Writer
	ErrWriter io.Writer
	Logger    log.Logger
	// Settings are nil until the configuration is resolved.
	Settings *config.Settings
	// WorkingDir is the directory xia2 was started in. Relative paths given on the command line are taken
	// relative to it.
	WorkingDir string
	// ConfigPath is the configuration file in use, empty when there is none.
	ConfigPath string
	Version    string
	Telemeter  *telemetry.Telemeter
	// NewCatalog builds the candidate tables of every stage.
	NewCatalog func() (*stage.Catalog, error)
	// LookPath replaces the executable search of availability checks when set.
	LookPath func(name string) (string, error)
	// CommandRunner replaces how scheduler commands are run when set.
	CommandRunner driver.CommandRunner
	// RetryDelay is the pause before a failed stage is rerun.
	RetryDelay time.Duration
}

// NewOptions returns options writing to the standard streams.
func NewOptions() *Options {
	return NewOptionsWithWriters(os.Stdout, os.Stderr)
}

// NewOptionsWithWriters returns options writing command output to stdout and logs to stderr.
func NewOptionsWithWriters(stdout, stderr io.Writer) *Options {
	return &Options{
		Writer:     stdout,
		ErrWriter:  stderr,
		Logger:     log.New(log.WithOutput(stderr), log.WithTerminalFormatter()),
		Version:    "dev",
		NewCatalog: stages.DefaultCatalog,
		RetryDelay: pipeline.DefaultRetryDelay,
	}
}

// Context returns ctx carrying the logger and the telemeter.
func (opts *Options) Context(ctx context.Context, logger log.Logger) context.Context {
	ctx = log.ContextWithLogger(ctx, logger)

	if opts.Telemeter != nil {
		ctx = telemetry.ContextWithTelemeter(ctx, opts.Telemeter)
	}

	return ctx
}

// Catalog returns the candidate tables.
func (opts *Options) Catalog() (*stage.Catalog, error) {
	return opts.NewCatalog()
}

// StageEnv returns what availability checks and stage runs consult: the driver factory of the configured type,
// the logger and the executable search.
func (opts *Options) StageEnv(logger log.Logger) (stage.Env, error) {
	if opts.Settings == nil {
		return stage.Env{}, errors.Errorf("settings are not resolved")
	}

	cfg := opts.Settings.FactoryConfig()
	cfg.Runner = opts.CommandRunner

	factory, err := driver.NewFactory(cfg, logger)
	if err != nil {
		return stage.Env{}, err
	}

	return stage.Env{Drivers: factory, Logger: logger, LookPath: opts.LookPath}, nil
}

// Store returns the project state store of the working directory.
func (opts *Options) Store() *pipeline.Store {
	return pipeline.NewStore(opts.Settings.WorkingDir)
}

// ShouldColor reports whether command output goes to a terminal.
func (opts *Options) ShouldColor() bool {
	file, ok := opts.Writer.(*os.File)

	return ok && (isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd()))
}
