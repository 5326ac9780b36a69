package decorator

import (
	"path/filepath"
	"strings"

	"github.com/xia2/xia2-go/internal/driver"
	"github.com/xia2/xia2-go/internal/errors"
)

// Markers returns a Check that fails on the first of markers found among the last window lines.
func Markers(window int, markers ...driver.Marker) Check {
	return func(program string, lines []string) error {
		return driver.ScanMarkers(program, lines, window, markers)
	}
}

// GenericErrors fails on crashes any program can suffer.
var GenericErrors = Markers(driver.GenericMarkerWindow, driver.GenericMarkers...)

var xdsErrorDatabase = map[string]string{
	"cannot open or read file lp_01.tmp": "error running forkintegrate",
}

// XDSErrors fails on XDS `!!! ERROR !!!` lines and reports an expired licence as unavailability.
func XDSErrors(program string, lines []string) error {
	program = filepath.Base(program)

	for _, line := range lines {
		if strings.Contains(line, "Sorry, license expired") {
			fields := strings.Fields(line)
			return errors.New(&driver.NotAvailableError{Executable: program, Reason: "licence expired on " + fields[len(fields)-1]})
		}

		if !strings.Contains(line, "!!!") || !strings.Contains(line, "ERROR") {
			continue
		}

		message := strings.TrimSpace(line)
		if parts := strings.Split(line, "!!!"); len(parts) > 2 {
			message = strings.ToLower(strings.TrimSpace(parts[2]))
		}

		if known, ok := xdsErrorDatabase[message]; ok {
			message = known
		}

		return errors.New(&driver.ExternalProgramError{Program: program, Marker: "[XDS] " + message, Line: line})
	}

	return nil
}

// DIALSErrors fails on the `Sorry:` lines DIALS programs print for user-facing errors, and on indexing failures.
func DIALSErrors(program string, lines []string) error {
	program = filepath.Base(program)

	for _, line := range lines {
		switch {
		case strings.HasPrefix(strings.TrimSpace(line), "Sorry:"):
			message := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "Sorry:"))
			return errors.New(&driver.ExternalProgramError{Program: program, Marker: "[DIALS] " + message, Line: line})
		case strings.Contains(line, "DialsIndexError"):
			return errors.New(&driver.ExternalProgramError{Program: program, Marker: "[DIALS] indexing failed", Line: line})
		}
	}

	return nil
}

// CCP4Errors fails on `CCP4 library signal` lines. A write failure is reported with the system signal that
// explains it.
func CCP4Errors(program string, lines []string) error {
	program = filepath.Base(program)

	for _, line := range lines {
		if !strings.Contains(line, "CCP4 library signal") {
			continue
		}

		message := afterColon(line)
		if before, _, ok := strings.Cut(message, "("); ok {
			message = strings.TrimSpace(before)
		}

		if strings.Contains(message, "Write failed") {
			for _, other := range lines {
				if strings.Contains(other, ">>>>>> System signal") {
					cause, _, _ := strings.Cut(afterColon(other), "(")
					message += ":" + strings.TrimSpace(cause)

					break
				}
			}
		}

		return errors.New(&driver.ExternalProgramError{Program: program, Marker: message, Line: line})
	}

	return nil
}

func afterColon(line string) string {
	parts := strings.Split(line, ":")
	if len(parts) < 2 {
		return strings.TrimSpace(line)
	}

	return strings.TrimSpace(parts[1])
}
