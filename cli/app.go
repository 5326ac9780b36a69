// Package cli builds the xia2 command line application.
package cli

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/xia2/xia2-go/cli/commands"
	"github.com/xia2/xia2-go/cli/flags/global"
	"github.com/xia2/xia2-go/internal/config"
	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/telemetry"
	"github.com/xia2/xia2-go/internal/util"
	"github.com/xia2/xia2-go/options"
	"github.com/xia2/xia2-go/pkg/log"
)

// NewApp creates the xia2 CLI App.
func NewApp(opts *options.Options) *cli.App {
	app := cli.NewApp()
	app.Name = options.AppName
	app.Usage = "Automated processing of X-ray diffraction data: indexes, refines, integrates and scales every sweep\nof a project with whichever implementation of each stage is available."
	app.UsageText = "xia2 [global options] <command> [options]"
	app.Version = opts.Version
	app.Writer = opts.Writer
	app.ErrWriter = opts.ErrWriter
	app.Flags = global.NewFlags()
	app.Commands = commands.New(opts)
	app.Before = beforeRunningCommand(opts)
	app.After = afterRunningCommand(opts)
	// Errors are reported and mapped to exit codes by the caller.
	app.ExitErrHandler = func(*cli.Context, error) {}

	return app
}

func beforeRunningCommand(opts *options.Options) cli.BeforeFunc {
	return func(c *cli.Context) error {
		if err := setupLogger(c, opts); err != nil {
			return err
		}

		if err := initialSetup(c, opts); err != nil {
			return err
		}

		tlm, err := telemetry.NewTelemeter(c.Context, options.AppName, opts.Version, opts.ErrWriter, global.TelemetryOptions(c))
		if err != nil {
			return NewExitError(err, ExitCodeMisuse)
		}

		opts.Telemeter = tlm
		c.Context = opts.Context(c.Context, opts.Logger)

		return nil
	}
}

func afterRunningCommand(opts *options.Options) cli.AfterFunc {
	return func(c *cli.Context) error {
		if opts.Telemeter == nil {
			return nil
		}

		if err := opts.Telemeter.Shutdown(c.Context); err != nil {
			opts.Logger.Warnf("Flushing telemetry: %v", err)
		}

		return nil
	}
}

func setupLogger(c *cli.Context, opts *options.Options) error {
	switch format := c.String(global.LogFormatFlagName); format {
	case global.LogFormatJSON:
		opts.Logger.SetOptions(log.WithJSONFormatter())
	case global.LogFormatText:
	default:
		return errors.New(&config.ConfigurationError{Problems: []string{
			"log format " + format + ": want " + global.LogFormatText + " or " + global.LogFormatJSON,
		}})
	}

	if level := c.String(global.LogLevelFlagName); level != "" {
		if err := opts.Logger.SetLevel(level); err != nil {
			return errors.New(&config.ConfigurationError{Problems: []string{err.Error()}})
		}
	}

	return nil
}

// initialSetup resolves the settings: flags and XIA2_* variables over the configuration file over the defaults.
// Paths given on the command line are relative to the directory xia2 was started in; the project file defaults to
// the working directory.
func initialSetup(c *cli.Context, opts *options.Options) error {
	if opts.WorkingDir == "" {
		currentDir, err := os.Getwd()
		if err != nil {
			return errors.New(err)
		}

		opts.WorkingDir = currentDir
	}

	flagLayer := global.Layer(c)

	for _, path := range []*string{flagLayer.WorkingDir, flagLayer.Project} {
		if path == nil {
			continue
		}

		expanded, err := util.ExpandPath(*path, opts.WorkingDir)
		if err != nil {
			return err
		}

		*path = expanded
	}

	configPath, err := findConfig(c, opts, flagLayer)
	if err != nil {
		return err
	}

	var fileLayer *config.Layer

	if configPath != "" {
		if fileLayer, err = config.LoadFile(configPath); err != nil {
			return err
		}

		opts.Logger.Debugf("Using configuration file %s", configPath)
	}

	settings, err := config.Resolve(fileLayer, flagLayer)
	if err != nil {
		return err
	}

	if settings.WorkingDir, err = util.ExpandPath(settings.WorkingDir, opts.WorkingDir); err != nil {
		return err
	}

	if settings.Project, err = util.ExpandPath(settings.Project, settings.WorkingDir); err != nil {
		return err
	}

	if settings.LogLevel != "" {
		if err := opts.Logger.SetLevel(settings.LogLevel); err != nil {
			return errors.New(&config.ConfigurationError{Problems: []string{err.Error()}})
		}
	}

	opts.ConfigPath = configPath
	opts.Settings = settings
	settings.Log(opts.Logger)

	return nil
}

// findConfig returns the --config file, or the one discovered from the working directory.
func findConfig(c *cli.Context, opts *options.Options, flagLayer *config.Layer) (string, error) {
	if path := c.String(global.ConfigFlagName); path != "" {
		return util.ExpandPath(path, opts.WorkingDir)
	}

	dir := opts.WorkingDir
	if flagLayer.WorkingDir != nil {
		dir = *flagLayer.WorkingDir
	}

	return config.Discover(dir)
}
