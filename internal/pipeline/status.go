package pipeline

import (
	"github.com/xia2/xia2-go/internal/errors"
)

// Status is where a stage of one sweep is in its lifecycle.
type Status int

const (
	// Absent means no implementation has been selected.
	Absent Status = iota
	// Pending means an implementation is selected and has not produced a result yet.
	Pending
	// Valid means the stage's result can be used downstream.
	Valid
	// Invalidated means the result, if any, can no longer be trusted and the stage must run again.
	Invalidated
)

var statusNames = map[Status]string{
	Absent:      "absent",
	Pending:     "pending",
	Valid:       "valid",
	Invalidated: "invalidated",
}

func (status Status) String() string {
	if name, ok := statusNames[status]; ok {
		return name
	}

	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (status Status) MarshalText() ([]byte, error) {
	return []byte(status.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (status *Status) UnmarshalText(text []byte) error {
	for s, name := range statusNames {
		if name == string(text) {
			*status = s
			return nil
		}
	}

	return errors.Errorf("unknown stage status %q", string(text))
}
