package driver

import (
	"strings"
	"time"

	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/pkg/log"
)

// Type selects how handles execute programs.
type Type string

const (
	// TypeSimple runs programs as local child processes.
	TypeSimple Type = "simple"
	// TypeCluster writes job scripts and runs them with a background shell on this host.
	TypeCluster Type = "cluster"
	// TypeQsub writes job scripts and submits them to Sun Grid Engine.
	TypeQsub Type = "qsub"
)

// Types lists the supported driver types.
var Types = []Type{TypeSimple, TypeCluster, TypeQsub}

// ParseType returns the Type named by str.
func ParseType(str string) (Type, error) {
	for _, typ := range Types {
		if strings.EqualFold(string(typ), str) {
			return typ, nil
		}
	}

	return "", errors.New(&ConfigurationError{Msg: "unknown driver type " + str})
}

// Factory creates handles of one type. It is safe for concurrent use once built.
type Factory struct {
	logger       log.Logger
	scheduler    Scheduler
	typ          Type
	pollInterval time.Duration
	timeout      time.Duration
	keepJobFiles bool
}

// FactoryConfig is the driver section of the configuration.
type FactoryConfig struct {
	Type         Type
	QsubCommand  string
	PollInterval time.Duration
	Timeout      time.Duration
	KeepJobFiles bool
	// Runner overrides how scheduler commands are run.
	Runner CommandRunner
}

// NewFactory validates cfg and prepares the scheduler it needs.
func NewFactory(cfg FactoryConfig, logger log.Logger) (*Factory, error) {
	if logger == nil {
		logger = log.Default()
	}

	factory := &Factory{
		logger:       logger,
		typ:          cfg.Type,
		pollInterval: cfg.PollInterval,
		timeout:      cfg.Timeout,
		keepJobFiles: cfg.KeepJobFiles,
	}

	switch cfg.Type {
	case TypeSimple, "":
		factory.typ = TypeSimple
	case TypeCluster:
		factory.scheduler = NewShellScheduler(logger)
	case TypeQsub:
		scheduler, err := NewSGEScheduler(cfg.QsubCommand, cfg.Runner, logger)
		if err != nil {
			return nil, err
		}

		factory.scheduler = scheduler
	default:
		return nil, errors.New(&ConfigurationError{Msg: "unknown driver type " + string(cfg.Type)})
	}

	return factory, nil
}

// Type returns the type of handles this factory makes.
func (factory *Factory) Type() Type {
	return factory.typ
}

// New returns a fresh Unstarted handle.
func (factory *Factory) New() Handle {
	if factory.scheduler == nil {
		return NewLocalDriver(factory.logger, WithTimeout(factory.timeout))
	}

	return NewClusterDriver(factory.scheduler, factory.logger,
		WithPollInterval(factory.pollInterval),
		WithJobTimeout(factory.timeout),
		WithKeepJobFiles(factory.keepJobFiles),
	)
}
