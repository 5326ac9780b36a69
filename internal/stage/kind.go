// Package stage selects the implementation of each pipeline stage. Every stage kind has a fixed, read-only table
// of candidates in priority order; selection honours an explicit preference without substitution, and otherwise
// takes the first candidate that can run here.
package stage

import (
	"strings"

	"github.com/xia2/xia2-go/internal/errors"
)

// Kind is a pipeline stage.
type Kind int

const (
	Indexer Kind = iota
	Refiner
	Integrater
	Scaler

	numKinds
)

// Kinds lists the stage kinds in pipeline order.
var Kinds = []Kind{Indexer, Refiner, Integrater, Scaler}

var kindNames = [numKinds]string{
	Indexer:    "indexer",
	Refiner:    "refiner",
	Integrater: "integrater",
	Scaler:     "scaler",
}

func (kind Kind) String() string {
	if kind < 0 || kind >= numKinds {
		return "unknown"
	}

	return kindNames[kind]
}

// ParseKind returns the Kind named by str.
func ParseKind(str string) (Kind, error) {
	for kind, name := range kindNames {
		if strings.EqualFold(name, str) {
			return Kind(kind), nil
		}
	}

	return 0, errors.Errorf("unknown stage %q, expected one of indexer, refiner, integrater, scaler", str)
}

// MarshalText implements encoding.TextMarshaler.
func (kind Kind) MarshalText() ([]byte, error) {
	return []byte(kind.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (kind *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}

	*kind = parsed

	return nil
}
