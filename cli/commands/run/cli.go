// Package run provides the command processing the sweeps of a project.
package run

import (
	"github.com/urfave/cli/v2"

	"github.com/xia2/xia2-go/cli/flags"
	"github.com/xia2/xia2-go/internal/report"
	"github.com/xia2/xia2-go/options"
)

const (
	CommandName = "run"

	FailFastFlagName         = "fail-fast"
	ReportFileFlagName       = "report-file"
	ReportFormatFlagName     = "report-format"
	ReportSchemaFileFlagName = "report-schema-file"
	SummaryDisableFlagName   = "summary-disable"

	// DefaultReportFile is the report written to the working directory when no other file is named.
	DefaultReportFile = "xia2-report.csv"
)

// Options are the flags of the run command.
type Options struct {
	ReportFile       string
	ReportFormat     string
	ReportSchemaFile string
	FailFast         bool
	SummaryDisable   bool
}

// NewFlags returns the flags of the run command.
func NewFlags(cmdOpts *Options) []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        FailFastFlagName,
			EnvVars:     flags.EnvVars(FailFastFlagName),
			Usage:       "Does not start sweeps that have not started yet once one sweep failed.",
			Destination: &cmdOpts.FailFast,
		},
		&cli.StringFlag{
			Name:        ReportFileFlagName,
			EnvVars:     flags.EnvVars(ReportFileFlagName),
			Usage:       "Path of the run report, relative to the working directory.",
			Value:       DefaultReportFile,
			Destination: &cmdOpts.ReportFile,
		},
		&cli.StringFlag{
			Name:        ReportFormatFlagName,
			EnvVars:     flags.EnvVars(ReportFormatFlagName),
			Usage:       "Format of the run report: csv or json. Taken from the report file extension when not set.",
			Destination: &cmdOpts.ReportFormat,
		},
		&cli.StringFlag{
			Name:        ReportSchemaFileFlagName,
			EnvVars:     flags.EnvVars(ReportSchemaFileFlagName),
			Usage:       "Writes the JSON schema of the run report to this path.",
			Destination: &cmdOpts.ReportSchemaFile,
		},
		&cli.BoolFlag{
			Name:        SummaryDisableFlagName,
			EnvVars:     flags.EnvVars(SummaryDisableFlagName),
			Usage:       "Does not print the run summary.",
			Destination: &cmdOpts.SummaryDisable,
		},
	}
}

// NewCommand returns the run command.
func NewCommand(opts *options.Options) *cli.Command {
	cmdOpts := &Options{}

	return &cli.Command{
		Name:      CommandName,
		Usage:     "Process the sweeps of the project file, resuming from the saved state.",
		UsageText: "xia2 [global options] run [options]",
		Flags:     NewFlags(cmdOpts),
		Action: func(c *cli.Context) error {
			return Run(opts.Context(c.Context, opts.Logger), opts.Logger, opts, cmdOpts)
		},
	}
}

func (cmdOpts *Options) format() (report.Format, error) {
	return report.ParseFormat(cmdOpts.ReportFormat, cmdOpts.ReportFile)
}
