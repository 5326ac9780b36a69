package logparse

import "fmt"

// ParseError reports output that lacks something the schema requires.
type ParseError struct {
	Schema string
	Marker string
	Field  string
	Line   int
	Reason string
}

func (err ParseError) Error() string {
	prefix := "log"
	if err.Schema != "" {
		prefix = err.Schema + " log"
	}

	switch {
	case err.Field != "" && err.Reason == "":
		return fmt.Sprintf("%s: marker %q for %s not found", prefix, err.Marker, err.Field)
	case err.Field != "":
		return fmt.Sprintf("%s: %s on line %d: %s", prefix, err.Field, err.Line+1, err.Reason)
	case err.Marker != "":
		return fmt.Sprintf("%s: required marker %q not found", prefix, err.Marker)
	}

	return fmt.Sprintf("%s: %s", prefix, err.Reason)
}
