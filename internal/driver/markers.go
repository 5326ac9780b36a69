package driver

import (
	"path/filepath"
	"strings"

	"github.com/xia2/xia2-go/internal/errors"
)

// GenericMarkerWindow is how many trailing output lines CheckForErrors looks at.
const GenericMarkerWindow = 30

// Marker is a substring that identifies a fatal condition in program output.
type Marker struct {
	Substring   string
	Description string
}

// GenericMarkers are fatal conditions any program can hit, independent of its suite.
var GenericMarkers = []Marker{
	{"Segmentation fault", "segmentation fault"},
	{"Killed", "killed"},
	{"Aborted", "aborted"},
	{"Floating Exception", "floating point exception"},
	{"error while loading shared libraries", "missing shared library"},
	{"command not found", "command not found"},
	{"dyld: Library not loaded", "missing shared library"},
	{"Traceback (most recent call last)", "python traceback"},
}

// ScanMarkers returns an ExternalProgramError for the first line among the last window lines containing any
// of the markers. A window of zero or less scans every line.
func ScanMarkers(program string, lines []string, window int, markers []Marker) error {
	if window > 0 && len(lines) > window {
		lines = lines[len(lines)-window:]
	}

	for _, line := range lines {
		for _, marker := range markers {
			if strings.Contains(line, marker.Substring) {
				return errors.New(&ExternalProgramError{
					Program: filepath.Base(program),
					Marker:  marker.Description,
					Line:    line,
				})
			}
		}
	}

	return nil
}
