package telemetry

import "fmt"

// ErrorMissingEnvVariable error for missing environment variable.
type ErrorMissingEnvVariable struct {
	Vars []string
}

func (e *ErrorMissingEnvVariable) Error() string {
	return fmt.Sprintf("missing environment variable: %v", e.Vars)
}

// ErrorUnknownExporter names an exporter type that is not supported.
type ErrorUnknownExporter struct {
	Type string
}

func (e *ErrorUnknownExporter) Error() string {
	return fmt.Sprintf("unknown telemetry exporter %q", e.Type)
}
