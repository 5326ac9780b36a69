// Package report collects one run entry per sweep and stage and renders them as a summary, CSV or JSON.
package report

import (
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/xia2/xia2-go/internal/errors"
)

// Report captures data for a report/summary.
type Report struct {
	workingDir  string
	format      Format
	Runs        []*Run
	mu          sync.RWMutex
	shouldColor bool
}

// Run captures one stage run of one sweep.
type Run struct {
	Started   time.Time
	Ended     time.Time
	Reason    *Reason
	Cause     *Cause
	Sweep     string
	Stage     string
	Candidate string
	Result    Result
	Attempts  int
	mu        sync.RWMutex
}

// Result captures the result of a run.
type Result string

// Reason captures the reason for a run.
type Reason string

// Cause captures the cause of a run, such as the last error.
type Cause string

// Format is the file format of a written report.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

const (
	ResultSucceeded Result = "succeeded"
	ResultFailed    Result = "failed"
	// ResultCached is a stage whose result was still valid from an earlier run.
	ResultCached  Result = "cached"
	ResultSkipped Result = "skipped"
)

const (
	ReasonRetrySucceeded       Reason = "retry succeeded"
	ReasonRetriesExhausted     Reason = "retries exhausted"
	ReasonToolchainUnavailable Reason = "toolchain unavailable"
	ReasonNotConfigured        Reason = "not configured"
	ReasonRunError             Reason = "run error"
	ReasonCancelled            Reason = "cancelled"
)

// ParseFormat returns the format called name, or the one matching the extension of path when name is empty.
func ParseFormat(name, path string) (Format, error) {
	if name == "" {
		if strings.EqualFold(filepath.Ext(path), ".json") {
			return FormatJSON, nil
		}

		return FormatCSV, nil
	}

	switch format := Format(strings.ToLower(name)); format {
	case FormatCSV, FormatJSON:
		return format, nil
	}

	return "", errors.Errorf("unsupported report format %q, supported formats: %s, %s", name, FormatCSV, FormatJSON)
}

// Option configures a Report.
type Option func(*Report)

// WithWorkingDir sets the directory relative report paths are written to.
func WithWorkingDir(dir string) Option {
	return func(r *Report) {
		r.workingDir = dir
	}
}

// WithFormat sets the format of WriteToFile.
func WithFormat(format Format) Option {
	return func(r *Report) {
		r.format = format
	}
}

// WithShouldColor colors the summary.
func WithShouldColor(shouldColor bool) Option {
	return func(r *Report) {
		r.shouldColor = shouldColor
	}
}

// NewReport creates a new report.
func NewReport(opts ...Option) *Report {
	r := &Report{
		Runs:   make([]*Run, 0),
		format: FormatCSV,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// NewRun creates a new run of stage on sweep.
func NewRun(sweep, stage string) *Run {
	return &Run{
		Sweep:   sweep,
		Stage:   stage,
		Started: time.Now(),
	}
}

// Name returns `<sweep>/<stage>`.
func (run *Run) Name() string {
	return run.Sweep + "/" + run.Stage
}

// ErrRunAlreadyExists is returned when a run already exists in the report.
var ErrRunAlreadyExists = errors.New("run already exists")

// ErrRunNotFound is returned when a run is not found in the report.
var ErrRunNotFound = errors.New("run not found")

// AddRun adds a run to the report.
func (r *Report) AddRun(run *Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.Runs {
		if existing.Name() == run.Name() {
			return errors.Errorf("%w: %s", ErrRunAlreadyExists, run.Name())
		}
	}

	r.Runs = append(r.Runs, run)

	return nil
}

// GetRun returns the run of stage on sweep.
func (r *Report) GetRun(sweep, stage string) (*Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, run := range r.Runs {
		if run.Sweep == sweep && run.Stage == stage {
			return run, nil
		}
	}

	return nil, errors.Errorf("%w: %s/%s", ErrRunNotFound, sweep, stage)
}

// EnsureRun returns the run of stage on sweep, starting one if there is none.
func (r *Report) EnsureRun(sweep, stage string) *Run {
	if run, err := r.GetRun(sweep, stage); err == nil {
		return run
	}

	run := NewRun(sweep, stage)
	if err := r.AddRun(run); err != nil {
		// Added concurrently.
		run, _ = r.GetRun(sweep, stage)
	}

	return run
}

// EndOption are optional configurations for ending a run.
type EndOption func(*Run)

// EndRun ends the run of stage on sweep. It is assumed to have succeeded unless WithResult says otherwise.
func (r *Report) EndRun(sweep, stage string, endOptions ...EndOption) error {
	run, err := r.GetRun(sweep, stage)
	if err != nil {
		return err
	}

	run.mu.Lock()
	defer run.mu.Unlock()

	run.Ended = time.Now()
	run.Result = ResultSucceeded

	for _, endOption := range endOptions {
		endOption(run)
	}

	return nil
}

// WithResult sets the result of a run.
func WithResult(result Result) EndOption {
	return func(run *Run) {
		run.Result = result
	}
}

// WithReason sets the reason of a run.
func WithReason(reason Reason) EndOption {
	return func(run *Run) {
		run.Reason = &reason
	}
}

// WithCause sets the cause of a run, usually the error that ended it.
func WithCause(cause string) EndOption {
	return func(run *Run) {
		cause := Cause(strings.TrimSpace(cause))
		run.Cause = &cause
	}
}

// WithCandidate sets the implementation that ran.
func WithCandidate(candidate string) EndOption {
	return func(run *Run) {
		run.Candidate = candidate
	}
}

// WithAttempts sets how many times the stage ran.
func WithAttempts(attempts int) EndOption {
	return func(run *Run) {
		run.Attempts = attempts
	}
}

// SortRuns orders runs by sweep, then by start time. The caller must hold the report lock.
func (r *Report) SortRuns() {
	slices.SortStableFunc(r.Runs, func(a, b *Run) int {
		if a.Sweep != b.Sweep {
			return strings.Compare(a.Sweep, b.Sweep)
		}

		return a.Started.Compare(b.Started)
	})
}
