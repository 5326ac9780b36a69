package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"

	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/util"
)

const csvFieldCount = 9

var csvHeader = []string{"Sweep", "Stage", "Candidate", "Attempts", "Started", "Ended", "Result", "Reason", "Cause"}

// JSONRun represents a run in JSON format.
type JSONRun struct {
	Started time.Time `json:"Started" jsonschema:"required"`
	Ended   time.Time `json:"Ended" jsonschema:"required"`
	// Reason is the reason for the run result, if any.
	Reason *string `json:"Reason,omitempty" jsonschema:"enum=retry succeeded,enum=retries exhausted,enum=toolchain unavailable,enum=not configured,enum=run error,enum=cancelled"`
	// Cause is the error that ended the run, if any.
	Cause     *string `json:"Cause,omitempty"`
	Sweep     string  `json:"Sweep" jsonschema:"required"`
	Stage     string  `json:"Stage" jsonschema:"required,enum=indexer,enum=refiner,enum=integrater,enum=scaler"`
	Candidate string  `json:"Candidate,omitempty"`
	Result    string  `json:"Result" jsonschema:"required,enum=succeeded,enum=failed,enum=cached,enum=skipped"`
	Attempts  int     `json:"Attempts,omitempty"`
}

// JSONRuns is a slice of JSONRun entries.
type JSONRuns []JSONRun

// ParseJSONRuns parses a JSON report.
func ParseJSONRuns(data []byte) (JSONRuns, error) {
	var runs JSONRuns
	if err := json.Unmarshal(data, &runs); err != nil {
		return nil, errors.Errorf("failed to parse JSON report: %w", err)
	}

	return runs, nil
}

// Find returns the run of stage on sweep.
func (runs JSONRuns) Find(sweep, stage string) *JSONRun {
	for i := range runs {
		if runs[i].Sweep == sweep && runs[i].Stage == stage {
			return &runs[i]
		}
	}

	return nil
}

// Report rebuilds a report from runs read back from a file.
func (runs JSONRuns) Report(opts ...Option) *Report {
	r := NewReport(opts...)

	for _, jsonRun := range runs {
		run := &Run{
			Started:   jsonRun.Started,
			Ended:     jsonRun.Ended,
			Sweep:     jsonRun.Sweep,
			Stage:     jsonRun.Stage,
			Candidate: jsonRun.Candidate,
			Result:    Result(jsonRun.Result),
			Attempts:  jsonRun.Attempts,
		}

		if jsonRun.Reason != nil {
			reason := Reason(*jsonRun.Reason)
			run.Reason = &reason
		}

		if jsonRun.Cause != nil {
			cause := Cause(*jsonRun.Cause)
			run.Cause = &cause
		}

		r.Runs = append(r.Runs, run)
	}

	return r
}

// ParseCSVRuns parses a CSV report into the same shape as a JSON one.
func ParseCSVRuns(data []byte) (JSONRuns, error) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, errors.Errorf("failed to parse CSV report: %w", err)
	}

	if len(records) == 0 {
		return nil, errors.Errorf("CSV report has no header")
	}

	runs := make(JSONRuns, 0, len(records)-1)

	for i, record := range records[1:] {
		if len(record) != csvFieldCount {
			return nil, errors.Errorf("CSV report row %d has %d fields, expected %d", i+2, len(record), csvFieldCount)
		}

		run := JSONRun{Sweep: record[0], Stage: record[1], Candidate: record[2], Result: record[6]}

		if record[3] != "" {
			if run.Attempts, err = strconv.Atoi(record[3]); err != nil {
				return nil, errors.Errorf("CSV report row %d: %w", i+2, err)
			}
		}

		if run.Started, err = time.Parse(time.RFC3339, record[4]); err != nil {
			return nil, errors.Errorf("CSV report row %d: %w", i+2, err)
		}

		if run.Ended, err = time.Parse(time.RFC3339, record[5]); err != nil {
			return nil, errors.Errorf("CSV report row %d: %w", i+2, err)
		}

		if record[7] != "" {
			run.Reason = &record[7]
		}

		if record[8] != "" {
			run.Cause = &record[8]
		}

		runs = append(runs, run)
	}

	return runs, nil
}

// SchemaValidationError lists why a JSON report does not match the schema.
type SchemaValidationError struct {
	Errors []string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("schema validation failed with %d error(s): %v", len(e.Errors), e.Errors)
}

// ValidateJSONReport validates a JSON report against the schema.
func ValidateJSONReport(data []byte) error {
	schemaBytes, err := json.Marshal(generateReportSchema())
	if err != nil {
		return errors.Errorf("failed to generate schema: %w", err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaBytes), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return errors.Errorf("failed to validate report: %w", err)
	}

	if !result.Valid() {
		messages := make([]string, len(result.Errors()))
		for i, validationErr := range result.Errors() {
			messages[i] = validationErr.String()
		}

		return errors.New(&SchemaValidationError{Errors: messages})
	}

	return nil
}

// WriteToFile writes the report in its format to path, relative to the report's working directory.
func (r *Report) WriteToFile(path string) error {
	var buf bytes.Buffer

	r.mu.Lock()
	r.SortRuns()
	r.mu.Unlock()

	var err error

	switch r.format {
	case FormatCSV:
		err = r.WriteCSV(&buf)
	case FormatJSON:
		err = r.WriteJSON(&buf)
	default:
		return errors.Errorf("unsupported report format: %s", r.format)
	}

	if err != nil {
		return errors.Errorf("failed to write report: %w", err)
	}

	if r.workingDir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(r.workingDir, path)
	}

	return util.WriteFileAtomic(path, buf.Bytes(), 0o644)
}

// WriteCSV writes the report to a writer in CSV format.
func (r *Report) WriteCSV(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	csvWriter := csv.NewWriter(w)

	if err := csvWriter.Write(csvHeader); err != nil {
		return errors.New(err)
	}

	for _, run := range r.jsonRuns() {
		reason, cause, attempts := "", "", ""

		if run.Reason != nil {
			reason = *run.Reason
		}

		if run.Cause != nil {
			cause = *run.Cause
		}

		if run.Attempts > 0 {
			attempts = strconv.Itoa(run.Attempts)
		}

		err := csvWriter.Write([]string{
			run.Sweep,
			run.Stage,
			run.Candidate,
			attempts,
			run.Started.Format(time.RFC3339),
			run.Ended.Format(time.RFC3339),
			run.Result,
			reason,
			cause,
		})
		if err != nil {
			return errors.New(err)
		}
	}

	csvWriter.Flush()

	return errors.New(csvWriter.Error())
}

// WriteJSON writes the report to a writer in JSON format.
func (r *Report) WriteJSON(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jsonBytes, err := json.MarshalIndent(r.jsonRuns(), "", "  ")
	if err != nil {
		return errors.New(err)
	}

	if _, err := w.Write(append(jsonBytes, '\n')); err != nil {
		return errors.New(err)
	}

	return nil
}

// jsonRuns snapshots the runs. The caller must hold the report lock.
func (r *Report) jsonRuns() JSONRuns {
	runs := make(JSONRuns, 0, len(r.Runs))

	for _, run := range r.Runs {
		run.mu.RLock()

		jsonRun := JSONRun{
			Started:   run.Started,
			Ended:     run.Ended,
			Sweep:     run.Sweep,
			Stage:     run.Stage,
			Candidate: run.Candidate,
			Result:    string(run.Result),
			Attempts:  run.Attempts,
		}

		if run.Reason != nil {
			reason := string(*run.Reason)
			jsonRun.Reason = &reason
		}

		if run.Cause != nil {
			cause := string(*run.Cause)
			jsonRun.Cause = &cause
		}

		run.mu.RUnlock()

		runs = append(runs, jsonRun)
	}

	return runs
}

// WriteSchema writes a JSON schema for the report to a writer.
func WriteSchema(w io.Writer) error {
	jsonBytes, err := json.MarshalIndent(generateReportSchema(), "", "  ")
	if err != nil {
		return errors.New(err)
	}

	if _, err := w.Write(append(jsonBytes, '\n')); err != nil {
		return errors.New(err)
	}

	return nil
}

// WriteSchemaToFile writes the JSON schema of the report to path.
func WriteSchemaToFile(path string) error {
	var buf bytes.Buffer

	if err := WriteSchema(&buf); err != nil {
		return err
	}

	return util.WriteFileAtomic(path, buf.Bytes(), 0o644)
}

// ReadRuns reads a report file written in either format, chosen by extension.
func ReadRuns(path string) (JSONRuns, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err)
	}

	if filepath.Ext(path) == ".json" {
		return ParseJSONRuns(data)
	}

	return ParseCSVRuns(data)
}

func generateReportSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
	}

	schema := reflector.Reflect(&JSONRun{})
	schema.ID = "https://xia2.github.io/schemas/run/report/v1/schema.json"
	schema.Title = "xia2 Run Report Schema"
	schema.Description = "One stage run of one sweep"

	return &jsonschema.Schema{
		Type:        "array",
		Title:       "xia2 Run Report Schema",
		Description: "Array of xia2 stage runs",
		Items:       schema,
	}
}
