// Package report provides the command printing the report of the last run.
package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/xia2/xia2-go/cli/commands/run"
	"github.com/xia2/xia2-go/internal/config"
	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/report"
	"github.com/xia2/xia2-go/options"
)

const (
	CommandName = "report"

	FileFlagName     = "file"
	FormatFlagName   = "format"
	SchemaFlagName   = "schema"
	ValidateFlagName = "validate"

	FormatSummary = "summary"
)

// Options are the flags of the report command.
type Options struct {
	File     string
	Format   string
	Schema   bool
	Validate bool
}

// NewCommand returns the report command.
func NewCommand(opts *options.Options) *cli.Command {
	cmdOpts := &Options{}

	return &cli.Command{
		Name:      CommandName,
		Usage:     "Print the report of the last run as a summary, CSV or JSON.",
		UsageText: "xia2 [global options] report [--format summary|csv|json] [--file xia2-report.csv]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        FileFlagName,
				Usage:       "Report file written by run, relative to the working directory.",
				Value:       run.DefaultReportFile,
				Destination: &cmdOpts.File,
			},
			&cli.StringFlag{
				Name:        FormatFlagName,
				Usage:       "Output format: summary, csv or json.",
				Value:       FormatSummary,
				Destination: &cmdOpts.Format,
			},
			&cli.BoolFlag{
				Name:        SchemaFlagName,
				Usage:       "Prints the JSON schema of run reports instead.",
				Destination: &cmdOpts.Schema,
			},
			&cli.BoolFlag{
				Name:        ValidateFlagName,
				Usage:       "Checks a JSON report file against the schema.",
				Destination: &cmdOpts.Validate,
			},
		},
		Action: func(_ *cli.Context) error {
			return Run(opts, cmdOpts)
		},
	}
}

// Run prints the report file in the requested format.
func Run(opts *options.Options, cmdOpts *Options) error {
	if cmdOpts.Schema {
		return report.WriteSchema(opts.Writer)
	}

	path := cmdOpts.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(opts.Settings.WorkingDir, path)
	}

	if cmdOpts.Validate {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.New(err)
		}

		if err := report.ValidateJSONReport(data); err != nil {
			return err
		}

		_, err = fmt.Fprintf(opts.Writer, "%s is a valid run report\n", path)

		return errors.New(err)
	}

	runs, err := report.ReadRuns(path)
	if err != nil {
		return err
	}

	r := runs.Report(report.WithShouldColor(opts.ShouldColor()))

	switch cmdOpts.Format {
	case FormatSummary:
		return r.WriteSummary(opts.Writer)
	case string(report.FormatCSV):
		return r.WriteCSV(opts.Writer)
	case string(report.FormatJSON):
		return r.WriteJSON(opts.Writer)
	}

	return errors.New(&config.ConfigurationError{Problems: []string{
		fmt.Sprintf("unsupported report format %q, supported formats: %s, %s, %s", cmdOpts.Format, FormatSummary, report.FormatCSV, report.FormatJSON),
	}})
}
