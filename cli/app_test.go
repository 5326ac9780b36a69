package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xia2/xia2-go/cli"
	"github.com/xia2/xia2-go/internal/driver"
	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/logparse"
	"github.com/xia2/xia2-go/internal/pipeline"
	"github.com/xia2/xia2-go/internal/report"
	"github.com/xia2/xia2-go/internal/stage"
	"github.com/xia2/xia2-go/options"
)

const testProject = `name: insulin
sweeps:
  - name: SWEEP1
    template: insulin_1_###.img
    directory: images
    images: [1, 45]
    params:
      integrater:
        d_min: "1.6"
  - name: SWEEP2
    template: insulin_2_###.img
    directory: images
    images: [1, 30]
`

type fakeImpl struct {
	err error
	id  stage.ID
}

func (impl fakeImpl) ID() stage.ID { return impl.id }

func (impl fakeImpl) Run(_ context.Context, job *stage.Job) (*logparse.Record, error) {
	if impl.err != nil {
		return nil, impl.err
	}

	return logparse.NewRecord(impl.id.String(), map[string]logparse.Value{
		"d_min": {Kind: logparse.Number, Number: 1.5},
	}), nil
}

func available(id stage.ID) stage.Entry {
	return failing(id, nil)
}

func failing(id stage.ID, err error) stage.Entry {
	return stage.Entry{ID: id, New: func(context.Context, stage.Env) stage.Attempt {
		return stage.AvailableAttempt(fakeImpl{id: id, err: err})
	}}
}

func unavailable(id stage.ID) stage.Entry {
	return stage.Entry{ID: id, New: func(context.Context, stage.Env) stage.Attempt {
		return stage.UnavailableAttempt(errors.New(&driver.NotAvailableError{Executable: id.Name()}))
	}}
}

// testCatalog has the xds candidates available and the dials ones missing, unless overridden.
func testCatalog(overrides map[stage.Kind][]stage.Entry) func() (*stage.Catalog, error) {
	entries := map[stage.Kind][]stage.Entry{
		stage.Indexer:    {unavailable(stage.IndexerDials), available(stage.IndexerXDS)},
		stage.Refiner:    {unavailable(stage.RefinerDials), available(stage.RefinerXDS)},
		stage.Integrater: {unavailable(stage.IntegraterDials), available(stage.IntegraterXDSR)},
		stage.Scaler:     {unavailable(stage.ScalerDials), available(stage.ScalerXDSA)},
	}

	for kind, kindEntries := range overrides {
		entries[kind] = kindEntries
	}

	return func() (*stage.Catalog, error) {
		tables := make([]*stage.Table, 0, len(entries))

		for _, kind := range stage.Kinds {
			table, err := stage.NewTable(kind, entries[kind]...)
			if err != nil {
				return nil, err
			}

			tables = append(tables, table)
		}

		return stage.NewCatalog(tables...)
	}
}

type testApp struct {
	opts   *options.Options
	stdout *bytes.Buffer
	dir    string
}

func newTestApp(t *testing.T, overrides map[stage.Kind][]stage.Entry) *testApp {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "xia2.yaml"), []byte(testProject), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "xia2.hcl"), []byte("max_retries = 1\n"), 0o644))

	stdout := &bytes.Buffer{}
	opts := options.NewOptionsWithWriters(stdout, &bytes.Buffer{})
	opts.WorkingDir = dir
	opts.NewCatalog = testCatalog(overrides)
	opts.RetryDelay = 0

	return &testApp{opts: opts, stdout: stdout, dir: dir}
}

func (app *testApp) run(t *testing.T, args ...string) error {
	t.Helper()

	app.stdout.Reset()

	return cli.NewApp(app.opts).RunContext(t.Context(), append([]string{"xia2"}, args...))
}

func TestRunProcessesProject(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, nil)

	require.NoError(t, app.run(t, "run"))
	assert.Contains(t, app.stdout.String(), "Run Summary")
	assert.Contains(t, app.stdout.String(), "2/2")

	store := pipeline.NewStore(app.dir)
	project, err := store.Load("insulin")
	require.NoError(t, err)
	require.Len(t, project.Sweeps(), 2)

	for _, state := range project.Sweeps() {
		assert.True(t, state.Complete(), state.Name())
	}

	state, err := project.Sweep("SWEEP1")
	require.NoError(t, err)
	assert.Equal(t, stage.IntegraterXDSR, state.Slot(stage.Integrater).Candidate)
	assert.Equal(t, "1.6", state.Params(stage.Integrater)["d_min"])

	runs, err := report.ReadRuns(filepath.Join(app.dir, "xia2-report.csv"))
	require.NoError(t, err)
	assert.Len(t, runs, 8)

	// A second run finds every stage still valid.
	require.NoError(t, app.run(t, "run", "--report-file", "second.json"))

	runs, err = report.ReadRuns(filepath.Join(app.dir, "second.json"))
	require.NoError(t, err)
	require.NotNil(t, runs.Find("SWEEP2", "scaler"))
	assert.Equal(t, string(report.ResultCached), runs.Find("SWEEP2", "scaler").Result)

	require.NoError(t, app.run(t, "status"))
	assert.Contains(t, app.stdout.String(), "SWEEP1")
	assert.Contains(t, app.stdout.String(), "valid (xdsr)")

	require.NoError(t, app.run(t, "report", "--format", "csv"))
	assert.Contains(t, app.stdout.String(), "Sweep,Stage,Candidate,Attempts,Started,Ended,Result,Reason,Cause")
}

func TestRunPreselectionInvalidatesOtherCandidates(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, map[stage.Kind][]stage.Entry{
		stage.Integrater: {available(stage.IntegraterDials), available(stage.IntegraterXDSR)},
	})

	require.NoError(t, app.run(t, "run", "--summary-disable"))
	assert.Empty(t, app.stdout.String())

	require.NoError(t, app.run(t, "--integrater", "xdsr", "run"))

	project, err := pipeline.NewStore(app.dir).Load("insulin")
	require.NoError(t, err)

	state, err := project.Sweep("SWEEP2")
	require.NoError(t, err)
	assert.Equal(t, stage.IntegraterXDSR, state.Slot(stage.Integrater).Candidate)
	assert.Equal(t, stage.IndexerXDS, state.Slot(stage.Indexer).Candidate)
	assert.Equal(t, stage.IntegraterXDSR, project.Preferences().Integrater)
}

func TestRunExitCodes(t *testing.T) {
	t.Parallel()

	programErr := errors.New(&stage.RunError{
		ID:          stage.IntegraterXDSR,
		Sweep:       "SWEEP1",
		CommandLine: "xds_par",
		Output:      []string{" !!! ERROR !!! CANNOT OPEN OR READ FILE LP_01.TMP"},
		Err:         errors.New(&driver.ExternalProgramError{Program: "xds_par", Marker: "!!! ERROR", Line: " !!! ERROR !!! CANNOT OPEN OR READ FILE LP_01.TMP"}),
	})

	testCases := []struct {
		overrides    map[stage.Kind][]stage.Entry
		name         string
		errorFile    []string
		args         []string
		expectedCode cli.ExitCode
	}{
		{
			name: "toolchain unavailable",
			overrides: map[stage.Kind][]stage.Entry{
				stage.Indexer: {unavailable(stage.IndexerDials), unavailable(stage.IndexerXDS)},
			},
			args:         []string{"run"},
			expectedCode: cli.ExitCodeToolchainUnavailable,
			errorFile:    []string{"Stage: indexer", "Candidate: none available (tried dials, xds)"},
		},
		{
			name:         "preselected unavailable",
			args:         []string{"--indexer", "dials", "run"},
			expectedCode: cli.ExitCodeToolchainUnavailable,
			errorFile:    []string{"preselected indexer dials not available"},
		},
		{
			name: "processing failed",
			overrides: map[stage.Kind][]stage.Entry{
				stage.Integrater: {failing(stage.IntegraterXDSR, programErr)},
			},
			args:         []string{"run"},
			expectedCode: cli.ExitCodeProcessingFailed,
			errorFile: []string{
				"Stage: integrater",
				"Candidate: xdsr",
				"Command line: xds_par",
				"Last output:",
				"CANNOT OPEN OR READ FILE LP_01.TMP",
			},
		},
		{
			name:         "unknown driver",
			args:         []string{"--driver", "condor", "run"},
			expectedCode: cli.ExitCodeMisuse,
			errorFile:    []string{"unknown driver type"},
		},
		{
			name:         "unknown log level",
			args:         []string{"--log-level", "loud", "status"},
			expectedCode: cli.ExitCodeMisuse,
		},
		{
			name:         "unknown report format",
			args:         []string{"run", "--report-format", "xml"},
			expectedCode: cli.ExitCodeMisuse,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			app := newTestApp(t, tc.overrides)

			err := app.run(t, tc.args...)
			require.Error(t, err)
			assert.Equal(t, tc.expectedCode, cli.ExitCodeOf(err))

			path, err := cli.WriteErrorFile(app.dir, err)
			require.NoError(t, err)

			data, err := os.ReadFile(path)
			require.NoError(t, err)

			for _, expected := range tc.errorFile {
				assert.Contains(t, string(data), expected)
			}
		})
	}
}

func TestInvalidate(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, nil)
	require.NoError(t, app.run(t, "run", "--summary-disable"))

	require.NoError(t, app.run(t, "invalidate", "--sweep", "SWEEP1", "--stage", "integrater"))
	assert.Equal(t, "SWEEP1: invalidated integrater, scaler\n", app.stdout.String())

	require.NoError(t, app.run(t, "invalidate", "--sweep", "SWEEP*", "--cell", "78.1,78.1,37.2,90,90,90"))
	assert.Contains(t, app.stdout.String(), "SWEEP2: invalidated indexer, refiner, integrater, scaler")

	project, err := pipeline.NewStore(app.dir).Load("insulin")
	require.NoError(t, err)

	state, err := project.Sweep("SWEEP2")
	require.NoError(t, err)
	assert.Equal(t, pipeline.Invalidated, state.Status(stage.Indexer))
	assert.Equal(t, "78.1,78.1,37.2,90,90,90", state.Params(stage.Indexer)[pipeline.ParamCell])

	require.NoError(t, app.run(t, "invalidate", "--sweep", "SWEEP2", "--param", "integrater.d_min=1.8"))
	assert.Equal(t, "SWEEP2: nothing invalidated\n", app.stdout.String(), "already invalidated stages are not reported again")

	var unknownErr *pipeline.UnknownSweepError

	err = app.run(t, "invalidate", "--sweep", "SWEEP9", "--stage", "scaler")
	require.ErrorAs(t, err, &unknownErr)

	err = app.run(t, "invalidate", "--sweep", "SWEEP1")
	require.Error(t, err)
	assert.Equal(t, cli.ExitCodeMisuse, cli.ExitCodeOf(err))

	err = app.run(t, "invalidate", "--param", "merger.d_min=1.8")
	require.Error(t, err)
	assert.Equal(t, cli.ExitCodeMisuse, cli.ExitCodeOf(err))
}

func TestCandidates(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, nil)

	require.NoError(t, app.run(t, "candidates"))
	assert.Contains(t, app.stdout.String(), "STAGE")
	assert.Regexp(t, `indexer\s+xds\s+available`, app.stdout.String())
	assert.Regexp(t, `indexer\s+dials\s+unavailable`, app.stdout.String())

	require.NoError(t, app.run(t, "candidates", "--json", "--concurrency", "2"))

	var candidates []struct {
		Stage     string `json:"stage"`
		Candidate string `json:"candidate"`
		Status    string `json:"status"`
	}

	require.NoError(t, json.Unmarshal(app.stdout.Bytes(), &candidates))
	require.Len(t, candidates, 8)
	assert.Equal(t, "indexer", candidates[0].Stage)
	assert.Equal(t, "dials", candidates[0].Candidate)
	assert.Equal(t, "unavailable", candidates[0].Status)
}

func TestReport(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, nil)

	require.NoError(t, app.run(t, "report", "--schema"))
	assert.Contains(t, app.stdout.String(), `"type": "array"`)

	require.NoError(t, app.run(t, "run", "--summary-disable", "--report-file", "report.json"))

	require.NoError(t, app.run(t, "report", "--file", "report.json", "--validate"))
	assert.Contains(t, app.stdout.String(), "is a valid run report")

	require.NoError(t, app.run(t, "report", "--file", "report.json"))
	assert.Contains(t, app.stdout.String(), "Run Summary")

	err := app.run(t, "report", "--file", "report.json", "--format", "xml")
	require.Error(t, err)
	assert.Equal(t, cli.ExitCodeMisuse, cli.ExitCodeOf(err))

	require.Error(t, app.run(t, "report", "--file", "missing.csv"))
}

func TestStatusWithoutState(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, nil)

	require.NoError(t, app.run(t, "status"))
	assert.Equal(t, "No sweeps have been processed.\n", app.stdout.String())
}
