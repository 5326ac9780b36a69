package stage

import (
	"context"

	"github.com/xia2/xia2-go/internal/driver"
	"github.com/xia2/xia2-go/internal/logparse"
	"github.com/xia2/xia2-go/pkg/log"
)

// Sweep is one contiguous block of frames being processed.
type Sweep struct {
	Name string `json:"name"`
	// Template is the image file name template, such as `insulin_1_###.img`.
	Template  string `json:"template"`
	Directory string `json:"directory"`
	// Images is the first and last image number.
	Images [2]int `json:"images"`
}

// Job is everything a stage implementation gets to run on one sweep.
type Job struct {
	Sweep Sweep
	// Params are the parameters of this stage, such as `d_min` for an integrater.
	Params map[string]string
	// Upstream holds the accepted results of the stages this one depends on.
	Upstream   map[Kind]*logparse.Record
	WorkingDir string
	Logger     log.Logger
}

// Implementation runs one stage on one sweep.
type Implementation interface {
	ID() ID
	Run(ctx context.Context, job *Job) (*logparse.Record, error)
}

// DriverFactory makes the process handles implementations run their programs with.
type DriverFactory interface {
	New() driver.Handle
}

// Env is what constructors may consult to decide whether a candidate can run here.
type Env struct {
	Drivers DriverFactory
	Logger  log.Logger
	// LookPath finds executables; driver.LookPath when nil.
	LookPath func(name string) (string, error)
	// Getenv reads environment variables; os.LookupEnv when nil.
	Getenv func(name string) (string, bool)
}

// Status is the result of one construction attempt.
type Status int

const (
	Available Status = iota
	Unavailable
	Failed
)

var statusNames = map[Status]string{
	Available:   "available",
	Unavailable: "unavailable",
	Failed:      "failed",
}

func (status Status) String() string {
	return statusNames[status]
}

// Attempt is what a constructor returns: an implementation, or the reason there is none.
type Attempt struct {
	Status Status
	Impl   Implementation
	Err    error
}

// AvailableAttempt returns a successful attempt.
func AvailableAttempt(impl Implementation) Attempt {
	return Attempt{Status: Available, Impl: impl}
}

// UnavailableAttempt returns an attempt for a candidate that cannot run here.
func UnavailableAttempt(err error) Attempt {
	return Attempt{Status: Unavailable, Err: err}
}

// FailedAttempt returns an attempt that failed for another reason.
func FailedAttempt(err error) Attempt {
	return Attempt{Status: Failed, Err: err}
}

// Constructor attempts to build a candidate.
type Constructor func(ctx context.Context, env Env) Attempt
