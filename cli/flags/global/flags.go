// Package global provides the flags every xia2 command accepts, and turns them into the flag layer of the
// settings.
package global

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/xia2/xia2-go/cli/flags"
	"github.com/xia2/xia2-go/internal/config"
	"github.com/xia2/xia2-go/internal/driver"
	"github.com/xia2/xia2-go/internal/stage"
	"github.com/xia2/xia2-go/internal/telemetry"
	"github.com/xia2/xia2-go/pkg/log"
)

const (
	// Logs related flags.

	LogLevelFlagName  = "log-level"
	LogFormatFlagName = "log-format"

	// Settings related flags.

	ConfigFlagName       = "config"
	WorkingDirFlagName   = "working-dir"
	ProjectFlagName      = "project"
	PipelineFlagName     = "pipeline"
	IndexerFlagName      = "indexer"
	RefinerFlagName      = "refiner"
	IntegraterFlagName   = "integrater"
	ScalerFlagName       = "scaler"
	DriverFlagName       = "driver"
	QsubCommandFlagName  = "qsub-command"
	PollIntervalFlagName = "poll-interval"
	TimeoutFlagName      = "timeout"
	KeepJobFilesFlagName = "keep-job-files"
	NJobFlagName         = "njob"
	NProcFlagName        = "nproc"
	MaxRetriesFlagName   = "max-retries"

	// Telemetry flags.

	TraceFlagName                                   = "trace"
	TelemetryTraceExporterFlagName                  = "telemetry-trace-exporter"
	TelemetryTraceExporterInsecureEndpointFlagName  = "telemetry-trace-exporter-insecure-endpoint"
	TelemetryTraceExporterHTTPEndpointFlagName      = "telemetry-trace-exporter-http-endpoint"
	TraceparentFlagName                             = "traceparent"
	TelemetryMetricExporterFlagName                 = "telemetry-metric-exporter"
	TelemetryMetricExporterInsecureEndpointFlagName = "telemetry-metric-exporter-insecure-endpoint"

	LogFormatText = "text"
	LogFormatJSON = "json"
)

// NewFlags returns the global flags.
func NewFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    LogLevelFlagName,
			EnvVars: flags.EnvVars(LogLevelFlagName),
			Usage:   fmt.Sprintf("Sets the logging level. Supported levels: %s.", log.AllLevels),
		},
		&cli.StringFlag{
			Name:    LogFormatFlagName,
			EnvVars: flags.EnvVars(LogFormatFlagName),
			Value:   LogFormatText,
			Usage:   "Writes log entries as text or as one JSON object per line.",
		},
		&cli.StringFlag{
			Name:    ConfigFlagName,
			Aliases: []string{"c"},
			EnvVars: flags.EnvVars(ConfigFlagName),
			Usage:   "Path to the xia2.hcl configuration file. Looked up in the working directory and the user config directory when not set.",
		},
		&cli.StringFlag{
			Name:    WorkingDirFlagName,
			Aliases: []string{"d"},
			EnvVars: flags.EnvVars(WorkingDirFlagName),
			Usage:   "Directory holding the project state, the stage working directories and the reports.",
		},
		&cli.StringFlag{
			Name:    ProjectFlagName,
			Aliases: []string{"p"},
			EnvVars: flags.EnvVars(ProjectFlagName),
			Usage:   "Path to the project file listing the sweeps.",
		},
		&cli.StringFlag{
			Name:    PipelineFlagName,
			EnvVars: flags.EnvVars(PipelineFlagName),
			Usage:   "Pipeline preset filling the stage preferences not set otherwise: " + strings.Join(stage.PresetNames(), ", ") + ".",
		},
		preferenceFlag(IndexerFlagName, stage.Indexer),
		preferenceFlag(RefinerFlagName, stage.Refiner),
		preferenceFlag(IntegraterFlagName, stage.Integrater),
		preferenceFlag(ScalerFlagName, stage.Scaler),
		&cli.StringFlag{
			Name:    DriverFlagName,
			EnvVars: flags.EnvVars(DriverFlagName),
			Usage:   fmt.Sprintf("How programs are executed: %v.", driver.Types),
		},
		&cli.StringFlag{
			Name:    QsubCommandFlagName,
			EnvVars: flags.EnvVars(QsubCommandFlagName),
			Usage:   "Command submitting job scripts with the qsub driver, such as \"qsub -q all.q\".",
		},
		&cli.StringFlag{
			Name:    PollIntervalFlagName,
			EnvVars: flags.EnvVars(PollIntervalFlagName),
			Usage:   "How often cluster jobs are checked for completion.",
		},
		&cli.StringFlag{
			Name:    TimeoutFlagName,
			EnvVars: flags.EnvVars(TimeoutFlagName),
			Usage:   "Kills programs running longer than this.",
		},
		&cli.BoolFlag{
			Name:    KeepJobFilesFlagName,
			EnvVars: flags.EnvVars(KeepJobFilesFlagName),
			Usage:   "Keeps the scripts and output files of cluster jobs.",
		},
		&cli.IntFlag{
			Name:    NJobFlagName,
			EnvVars: flags.EnvVars(NJobFlagName),
			Usage:   "Number of sweeps processed at once.",
		},
		&cli.IntFlag{
			Name:    NProcFlagName,
			EnvVars: flags.EnvVars(NProcFlagName),
			Usage:   "Number of processors each program may use.",
		},
		&cli.IntFlag{
			Name:    MaxRetriesFlagName,
			EnvVars: flags.EnvVars(MaxRetriesFlagName),
			Usage:   "How often a stage failing on the data is rerun.",
		},

		// Telemetry related flags.

		&cli.BoolFlag{
			Name:    TraceFlagName,
			EnvVars: flags.EnvVars(TraceFlagName),
			Usage:   "Writes traces of the stage runs to stderr.",
		},
		&cli.StringFlag{
			Name:    TelemetryTraceExporterFlagName,
			EnvVars: flags.EnvVars(TelemetryTraceExporterFlagName),
			Usage:   "Trace exporter: none, console, otlpHttp, otlpGrpc or http.",
		},
		&cli.BoolFlag{
			Name:    TelemetryTraceExporterInsecureEndpointFlagName,
			EnvVars: flags.EnvVars(TelemetryTraceExporterInsecureEndpointFlagName),
			Usage:   "Sends traces over an insecure connection.",
		},
		&cli.StringFlag{
			Name:    TelemetryTraceExporterHTTPEndpointFlagName,
			EnvVars: flags.EnvVars(TelemetryTraceExporterHTTPEndpointFlagName),
			Usage:   "Endpoint of the http trace exporter.",
		},
		&cli.StringFlag{
			Name:    TraceparentFlagName,
			EnvVars: []string{"TRACEPARENT"},
			Usage:   "Continues the trace of the caller, in W3C traceparent form.",
		},
		&cli.StringFlag{
			Name:    TelemetryMetricExporterFlagName,
			EnvVars: flags.EnvVars(TelemetryMetricExporterFlagName),
			Usage:   "Metric exporter: none, console, otlpHttp or otlpGrpc.",
		},
		&cli.BoolFlag{
			Name:    TelemetryMetricExporterInsecureEndpointFlagName,
			EnvVars: flags.EnvVars(TelemetryMetricExporterInsecureEndpointFlagName),
			Usage:   "Sends metrics over an insecure connection.",
		},
	}
}

func preferenceFlag(name string, kind stage.Kind) cli.Flag {
	return &cli.StringFlag{
		Name:    name,
		EnvVars: flags.EnvVars(name),
		Usage:   fmt.Sprintf("Preselects the %s: %s. Fails when it cannot run here.", kind, strings.Join(stage.CandidateNames(kind), ", ")),
	}
}

// Layer returns the settings given on the command line or in XIA2_* environment variables. Unset flags stay nil
// so they do not override the configuration file.
func Layer(c *cli.Context) *config.Layer {
	layer := &config.Layer{
		Pipeline:   stringFlag(c, PipelineFlagName),
		WorkingDir: stringFlag(c, WorkingDirFlagName),
		Project:    stringFlag(c, ProjectFlagName),
		LogLevel:   stringFlag(c, LogLevelFlagName),
		NJob:       intFlag(c, NJobFlagName),
		NProc:      intFlag(c, NProcFlagName),
		MaxRetries: intFlag(c, MaxRetriesFlagName),
	}

	prefs := &config.PreferencesLayer{
		Indexer:    stringFlag(c, IndexerFlagName),
		Refiner:    stringFlag(c, RefinerFlagName),
		Integrater: stringFlag(c, IntegraterFlagName),
		Scaler:     stringFlag(c, ScalerFlagName),
	}
	if *prefs != (config.PreferencesLayer{}) {
		layer.Preferences = prefs
	}

	drv := &config.DriverLayer{
		Type:         stringFlag(c, DriverFlagName),
		QsubCommand:  stringFlag(c, QsubCommandFlagName),
		PollInterval: stringFlag(c, PollIntervalFlagName),
		Timeout:      stringFlag(c, TimeoutFlagName),
	}

	if c.IsSet(KeepJobFilesFlagName) {
		keep := c.Bool(KeepJobFilesFlagName)
		drv.KeepJobFiles = &keep
	}

	if *drv != (config.DriverLayer{}) {
		layer.Driver = drv
	}

	return layer
}

// TelemetryOptions returns the exporters selected by the telemetry flags. --trace picks the console exporter
// unless another one is named.
func TelemetryOptions(c *cli.Context) *telemetry.Options {
	opts := &telemetry.Options{
		TraceExporter:                  c.String(TelemetryTraceExporterFlagName),
		TraceExporterHTTPEndpoint:      c.String(TelemetryTraceExporterHTTPEndpointFlagName),
		TraceExporterInsecureEndpoint:  c.Bool(TelemetryTraceExporterInsecureEndpointFlagName),
		TraceParent:                    c.String(TraceparentFlagName),
		MetricExporter:                 c.String(TelemetryMetricExporterFlagName),
		MetricExporterInsecureEndpoint: c.Bool(TelemetryMetricExporterInsecureEndpointFlagName),
	}

	if c.Bool(TraceFlagName) && opts.TraceExporter == "" {
		opts.TraceExporter = telemetry.ExporterConsole
	}

	return opts
}

func stringFlag(c *cli.Context, name string) *string {
	if !c.IsSet(name) {
		return nil
	}

	value := c.String(name)

	return &value
}

func intFlag(c *cli.Context, name string) *int {
	if !c.IsSet(name) {
		return nil
	}

	value := c.Int(name)

	return &value
}
