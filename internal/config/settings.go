package config

import (
	"fmt"
	"time"

	"github.com/fatih/structs"

	"github.com/xia2/xia2-go/internal/driver"
	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/stage"
	"github.com/xia2/xia2-go/internal/util"
	"github.com/xia2/xia2-go/pkg/log"
)

const (
	DefaultMaxRetries   = 3
	DefaultNJob         = 1
	DefaultNProc        = 1
	DefaultPollInterval = 5 * time.Second
	DefaultProjectFile  = "xia2.yaml"
)

// Settings are the resolved settings of one invocation.
type Settings struct {
	Pipeline        string             `structs:"pipeline"`
	PreferenceNames map[string]string  `structs:"preferences"`
	Driver          driver.Type        `structs:"driver"`
	QsubCommand     string             `structs:"qsub_command"`
	PollInterval    time.Duration      `structs:"poll_interval"`
	Timeout         time.Duration      `structs:"timeout"`
	KeepJobFiles    bool               `structs:"keep_job_files"`
	MaxRetries      int                `structs:"max_retries"`
	NJob            int                `structs:"njob"`
	NProc           int                `structs:"nproc"`
	WorkingDir      string             `structs:"working_dir"`
	Project         string             `structs:"project"`
	LogLevel        string             `structs:"log_level"`
	parsed          *stage.Preferences `structs:"-"`
}

// Defaults returns the settings used when nothing overrides them.
func Defaults() *Layer {
	return &Layer{
		MaxRetries: ptr(DefaultMaxRetries),
		NJob:       ptr(DefaultNJob),
		NProc:      ptr(DefaultNProc),
		WorkingDir: ptr("."),
		Project:    ptr(DefaultProjectFile),
		Driver: &DriverLayer{
			Type:         ptr(string(driver.TypeSimple)),
			PollInterval: ptr(DefaultPollInterval.String()),
		},
	}
}

// Resolve merges the defaults, the configuration file layer and the flag layer, then validates the result.
func Resolve(file, flags *Layer) (*Settings, error) {
	merged, err := Merge(Defaults(), file, flags)
	if err != nil {
		return nil, err
	}

	settings, problems := fromLayer(merged)

	problems = append(problems, settings.validate()...)
	if len(problems) > 0 {
		return nil, errors.New(&ConfigurationError{Problems: problems})
	}

	return settings, nil
}

// Preferences returns the stage preferences: explicit names first, the pipeline preset for the rest.
func (settings *Settings) Preferences() stage.Preferences {
	if settings.parsed != nil {
		return *settings.parsed
	}

	prefs, _ := settings.preferences()

	return prefs
}

// FactoryConfig returns the driver settings.
func (settings *Settings) FactoryConfig() driver.FactoryConfig {
	return driver.FactoryConfig{
		Type:         settings.Driver,
		QsubCommand:  settings.QsubCommand,
		PollInterval: settings.PollInterval,
		Timeout:      settings.Timeout,
		KeepJobFiles: settings.KeepJobFiles,
	}
}

// Log writes the settings at debug level.
func (settings *Settings) Log(logger log.Logger) {
	logger.WithFields(log.Fields(structs.Map(settings))).Debugf("Resolved settings")
}

func (settings *Settings) preferences() (stage.Preferences, error) {
	prefs, err := stage.ParsePreferences(settings.PreferenceNames)
	if err != nil {
		return prefs, err
	}

	if settings.Pipeline != "" {
		preset, err := stage.Preset(settings.Pipeline)
		if err != nil {
			return prefs, err
		}

		prefs = prefs.Fill(preset)
	}

	return prefs, nil
}

func (settings *Settings) validate() []string {
	var problems []string

	if prefs, err := settings.preferences(); err != nil {
		problems = append(problems, err.Error())
	} else {
		settings.parsed = &prefs
	}

	if _, err := driver.ParseType(string(settings.Driver)); err != nil {
		problems = append(problems, fmt.Sprintf("unknown driver type %q, expected simple, cluster or qsub", settings.Driver))
	}

	if settings.Driver == driver.TypeQsub && settings.QsubCommand == "" {
		problems = append(problems, "driver qsub needs qsub_command")
	}

	if settings.MaxRetries < 0 {
		problems = append(problems, fmt.Sprintf("max_retries must not be negative, got %d", settings.MaxRetries))
	}

	if settings.NJob < 1 {
		problems = append(problems, fmt.Sprintf("njob must be at least 1, got %d", settings.NJob))
	}

	if settings.NProc < 1 {
		problems = append(problems, fmt.Sprintf("nproc must be at least 1, got %d", settings.NProc))
	}

	if settings.PollInterval <= 0 {
		problems = append(problems, "poll_interval must be positive")
	}

	if settings.LogLevel != "" {
		if _, err := log.ParseLevel(settings.LogLevel); err != nil {
			problems = append(problems, err.Error())
		}
	}

	return problems
}

func fromLayer(layer *Layer) (*Settings, []string) {
	settings := &Settings{
		Pipeline:        deref(layer.Pipeline),
		PreferenceNames: make(map[string]string),
		MaxRetries:      deref(layer.MaxRetries),
		NJob:            deref(layer.NJob),
		NProc:           deref(layer.NProc),
		WorkingDir:      deref(layer.WorkingDir),
		Project:         deref(layer.Project),
		LogLevel:        deref(layer.LogLevel),
	}

	var problems []string

	if prefs := layer.Preferences; prefs != nil {
		for name, value := range map[string]*string{
			stage.Indexer.String():    prefs.Indexer,
			stage.Refiner.String():    prefs.Refiner,
			stage.Integrater.String(): prefs.Integrater,
			stage.Scaler.String():     prefs.Scaler,
		} {
			if value != nil && *value != "" {
				settings.PreferenceNames[name] = *value
			}
		}
	}

	if drv := layer.Driver; drv != nil {
		settings.Driver = driver.Type(deref(drv.Type))
		settings.QsubCommand = deref(drv.QsubCommand)
		settings.KeepJobFiles = deref(drv.KeepJobFiles)

		for name, field := range map[string]struct {
			value *string
			out   *time.Duration
		}{
			"poll_interval": {drv.PollInterval, &settings.PollInterval},
			"timeout":       {drv.Timeout, &settings.Timeout},
		} {
			if field.value == nil || *field.value == "" {
				continue
			}

			duration, err := time.ParseDuration(*field.value)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", name, err))
				continue
			}

			*field.out = duration
		}
	}

	if settings.WorkingDir != "" {
		if dir, err := util.ExpandPath(settings.WorkingDir, ""); err == nil {
			settings.WorkingDir = dir
		}
	}

	return settings, problems
}

func ptr[T any](value T) *T {
	return &value
}

func deref[T any](value *T) T {
	if value == nil {
		var zero T
		return zero
	}

	return *value
}
