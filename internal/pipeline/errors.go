package pipeline

import (
	"fmt"
	"strings"

	"github.com/xia2/xia2-go/internal/stage"
)

// TransitionError is an attempt to move a stage along an edge its lifecycle does not have.
type TransitionError struct {
	Sweep string
	Kind  stage.Kind
	From  Status
	To    Status
}

func (err TransitionError) Error() string {
	return fmt.Sprintf("sweep %s: %s cannot go from %s to %s", err.Sweep, err.Kind, err.From, err.To)
}

// UpstreamNotValidError means a stage was about to become valid while a stage it depends on is not.
type UpstreamNotValidError struct {
	Sweep    string
	Kind     stage.Kind
	Upstream stage.Kind
	Status   Status
}

func (err UpstreamNotValidError) Error() string {
	return fmt.Sprintf("sweep %s: %s cannot be valid while %s is %s", err.Sweep, err.Kind, err.Upstream, err.Status)
}

// ToolchainUnavailableError means a required stage has no candidate that can run here.
type ToolchainUnavailableError struct {
	Sweep string
	Kind  stage.Kind
	Tried []stage.Tried
	Err   error
}

func (err ToolchainUnavailableError) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("sweep %s: %v", err.Sweep, err.Err)
	}

	names := make([]string, len(err.Tried))
	for i, tried := range err.Tried {
		names[i] = tried.ID.Name()
	}

	return fmt.Sprintf("sweep %s: no %s implementations found (tried %s)", err.Sweep, err.Kind, strings.Join(names, ", "))
}

func (err ToolchainUnavailableError) Unwrap() error {
	return err.Err
}

// RetriesExhaustedError means a stage kept failing on the data until its retry budget ran out.
type RetriesExhaustedError struct {
	Sweep     string
	Kind      stage.Kind
	Candidate stage.ID
	Attempts  int
	Err       error
}

func (err RetriesExhaustedError) Error() string {
	return fmt.Sprintf("sweep %s: %s %s failed after %d attempts: %v", err.Sweep, err.Kind, err.Candidate.Name(), err.Attempts, err.Err)
}

func (err RetriesExhaustedError) Unwrap() error {
	return err.Err
}

// UnknownSweepError names a sweep that is not part of the project.
type UnknownSweepError struct {
	Name string
}

func (err UnknownSweepError) Error() string {
	return fmt.Sprintf("unknown sweep %q", err.Name)
}
