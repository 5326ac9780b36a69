package stage

import (
	"fmt"
	"strings"
)

// PreselectedNotAvailableError means the preferred candidate cannot run here. Selection does not fall back.
type PreselectedNotAvailableError struct {
	ID  ID
	Err error
}

func (err PreselectedNotAvailableError) Error() string {
	return fmt.Sprintf("preselected %s %s not available", err.ID.Kind(), err.ID.Name())
}

func (err PreselectedNotAvailableError) Unwrap() error {
	return err.Err
}

// ConstructionError means a candidate failed for a reason other than unavailability.
type ConstructionError struct {
	ID  ID
	Err error
}

func (err ConstructionError) Error() string {
	return fmt.Sprintf("constructing %s: %v", err.ID, err.Err)
}

func (err ConstructionError) Unwrap() error {
	return err.Err
}

// UnknownCandidateError names a candidate that is not in the table of its kind.
type UnknownCandidateError struct {
	Kind Kind
	Name string
}

func (err UnknownCandidateError) Error() string {
	return fmt.Sprintf("unknown %s %q, expected one of %s", err.Kind, err.Name, strings.Join(CandidateNames(err.Kind), ", "))
}

// UnavailableError reports that no candidate of a stage kind could run here.
type UnavailableError struct {
	Kind  Kind
	Tried []Tried
}

func (err UnavailableError) Error() string {
	reasons := make([]string, 0, len(err.Tried))

	for _, tried := range err.Tried {
		reasons = append(reasons, fmt.Sprintf("%s: %v", tried.ID.Name(), tried.Err))
	}

	if len(reasons) == 0 {
		return fmt.Sprintf("no %s available", err.Kind)
	}

	return fmt.Sprintf("no %s available (%s)", err.Kind, strings.Join(reasons, "; "))
}

// RunErrorOutputLines is how many trailing output lines a RunError keeps.
const RunErrorOutputLines = 20

// RunError is a failed stage run with the command line and the tail of the output of the program that failed.
type RunError struct {
	ID          ID
	Sweep       string
	CommandLine string
	WorkingDir  string
	Output      []string
	Err         error
}

func (err RunError) Error() string {
	return err.Err.Error()
}

func (err RunError) Unwrap() error {
	return err.Err
}
