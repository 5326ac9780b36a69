//go:build linux || darwin

package stages_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xia2/xia2-go/internal/driver"
	"github.com/xia2/xia2-go/internal/logparse"
	"github.com/xia2/xia2-go/internal/stage"
	"github.com/xia2/xia2-go/internal/stages"
	"github.com/xia2/xia2-go/pkg/log"
)

// binDrivers runs programs with bin in front of PATH.
type binDrivers struct {
	bin string
}

func (drivers binDrivers) New() driver.Handle {
	handle := driver.NewLocalDriver(log.New())
	handle.AddWorkingEnvironment("PATH", drivers.bin)

	return handle
}

func newEnv(bin string) stage.Env {
	return stage.Env{
		Drivers: binDrivers{bin: bin},
		Logger:  log.New(),
		LookPath: func(name string) (string, error) {
			return driver.LookPathIn(name, bin)
		},
		Getenv: func(name string) (string, bool) {
			return "/opt/ccp4", name == "CCP4"
		},
	}
}

func writeProgram(t *testing.T, dir, name, body string) {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body+"\n"), 0o755))
}

func newJob(t *testing.T, params map[string]string) *stage.Job {
	t.Helper()

	return &stage.Job{
		Sweep: stage.Sweep{
			Name:      "SWEEP1",
			Template:  "insulin_1_###.img",
			Directory: "/data/insulin",
			Images:    [2]int{1, 45},
		},
		Params:     params,
		Upstream:   map[stage.Kind]*logparse.Record{},
		WorkingDir: filepath.Join(t.TempDir(), "SWEEP1"),
	}
}

func selectImpl(t *testing.T, env stage.Env, id stage.ID) stage.Implementation {
	t.Helper()

	catalog, err := stages.DefaultCatalog()
	require.NoError(t, err)

	selection, err := catalog.Table(id.Kind()).Select(context.Background(), id, env)
	require.NoError(t, err)
	require.Equal(t, stage.Selected, selection.Outcome)

	return selection.Impl
}

func TestDefaultCatalogOrder(t *testing.T) {
	t.Parallel()

	catalog, err := stages.DefaultCatalog()
	require.NoError(t, err)

	testCases := []struct {
		kind     stage.Kind
		expected []stage.ID
	}{
		{stage.Indexer, []stage.ID{stage.IndexerDials, stage.IndexerXDS, stage.IndexerXDSII}},
		{stage.Refiner, []stage.ID{stage.RefinerDials, stage.RefinerXDS}},
		{stage.Integrater, []stage.ID{stage.IntegraterDials, stage.IntegraterMosflmR, stage.IntegraterXDSR}},
		{stage.Scaler, []stage.ID{stage.ScalerDials, stage.ScalerCCP4A, stage.ScalerXDSA}},
	}

	for _, tc := range testCases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			t.Parallel()

			var ids []stage.ID
			for _, entry := range catalog.Table(tc.kind).Entries() {
				ids = append(ids, entry.ID)
			}

			assert.Equal(t, tc.expected, ids)
		})
	}

	entry, ok := catalog.Table(stage.Integrater).Lookup(stage.IntegraterMosflmR)
	require.True(t, ok)
	assert.Equal(t, stage.ScalerCCP4A, entry.Implies.Scaler)
}

func TestEmptyPathHasNoIndexer(t *testing.T) {
	t.Parallel()

	catalog, err := stages.DefaultCatalog()
	require.NoError(t, err)

	selection, err := catalog.Table(stage.Indexer).Select(context.Background(), stage.None, newEnv(t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, stage.NoneAvailable, selection.Outcome)
	assert.Len(t, selection.Tried, 3)
}

func TestDIALSIndexerFallsBackPastMissingXDS(t *testing.T) {
	t.Parallel()

	bin := t.TempDir()
	writeProgram(t, bin, "dials.import", `echo "imported 45 images"`)
	writeProgram(t, bin, "dials.find_spots", `echo "Found 1234 strong spots"`)
	writeProgram(t, bin, "dials.index", `
echo "$@" > index.args
echo "Final refined crystal model:"
echo "Unit cell: (78.10, 78.10, 37.20, 90.00, 90.00, 90.00)"
echo "Space group: P 4 2 2"`)

	catalog, err := stages.DefaultCatalog()
	require.NoError(t, err)

	table, err := stage.NewTable(stage.Indexer,
		lookup(t, catalog, stage.IndexerXDS),
		lookup(t, catalog, stage.IndexerDials),
	)
	require.NoError(t, err)

	selection, err := table.Select(context.Background(), stage.None, newEnv(bin))
	require.NoError(t, err)
	require.Equal(t, stage.IndexerDials, selection.ID)

	job := newJob(t, map[string]string{stages.ParamCell: "78.1,78.1,37.2,90,90,90"})

	record, err := selection.Impl.Run(context.Background(), job)
	require.NoError(t, err)

	cell, err := record.Tuple(stages.ParamCell)
	require.NoError(t, err)
	assert.Equal(t, []float64{78.1, 78.1, 37.2, 90, 90, 90}, cell)

	spaceGroup, err := record.String(stages.ParamSpaceGroup)
	require.NoError(t, err)
	assert.Equal(t, "P 4 2 2", spaceGroup)

	args, err := os.ReadFile(filepath.Join(job.WorkingDir, "index.args"))
	require.NoError(t, err)
	assert.Contains(t, string(args), "unit_cell=78.1,78.1,37.2,90,90,90")

	assert.FileExists(t, filepath.Join(job.WorkingDir, "indexer_3_dials.index.log"))
}

func lookup(t *testing.T, catalog *stage.Catalog, id stage.ID) stage.Entry {
	t.Helper()

	entry, ok := catalog.Table(id.Kind()).Lookup(id)
	require.True(t, ok)

	return entry
}

func TestDIALSSorryIsProgramError(t *testing.T) {
	t.Parallel()

	bin := t.TempDir()
	writeProgram(t, bin, "dials.refine", `echo "Sorry: not enough reflections"`)

	impl := selectImpl(t, newEnv(bin), stage.RefinerDials)

	_, err := impl.Run(context.Background(), newJob(t, nil))

	var programErr *driver.ExternalProgramError
	require.ErrorAs(t, err, &programErr)
	assert.Equal(t, "[DIALS] not enough reflections", programErr.Marker)
}

func TestMissingMarkerIsParseError(t *testing.T) {
	t.Parallel()

	bin := t.TempDir()
	writeProgram(t, bin, "dials.scale", `echo "scaling..."`)

	impl := selectImpl(t, newEnv(bin), stage.ScalerDials)

	_, err := impl.Run(context.Background(), newJob(t, nil))

	var parseErr *logparse.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "Overall", parseErr.Marker)
}

func TestXDSIndexerSpotRange(t *testing.T) {
	t.Parallel()

	bin := t.TempDir()
	writeProgram(t, bin, "xds_par", `
cat > IDXREF.LP << 'EOF'
 DIFFRACTION PARAMETERS USED AT START OF INTEGRATION
 SPACE GROUP NUMBER     89
 UNIT CELL PARAMETERS     78.102    78.102    37.214  90.000  90.000  90.000
EOF`)

	testCases := []struct {
		id        stage.ID
		spotRange string
	}{
		{stage.IndexerXDS, "SPOT_RANGE= 1 5"},
		{stage.IndexerXDSII, "SPOT_RANGE= 1 45"},
	}

	for _, tc := range testCases {
		t.Run(tc.id.Name(), func(t *testing.T) {
			t.Parallel()

			job := newJob(t, nil)

			record, err := selectImpl(t, newEnv(bin), tc.id).Run(context.Background(), job)
			require.NoError(t, err)

			cell, err := record.Tuple(stages.ParamCell)
			require.NoError(t, err)
			assert.Equal(t, []float64{78.102, 78.102, 37.214, 90, 90, 90}, cell)

			input, err := os.ReadFile(filepath.Join(job.WorkingDir, "XDS.INP"))
			require.NoError(t, err)
			assert.Contains(t, string(input), "JOB= XYCORR INIT COLSPOT IDXREF")
			assert.Contains(t, string(input), "NAME_TEMPLATE_OF_DATA_FRAMES= /data/insulin/insulin_1_???.img")
			assert.Contains(t, string(input), tc.spotRange)
		})
	}
}

func TestXDSErrorIsProgramError(t *testing.T) {
	t.Parallel()

	bin := t.TempDir()
	writeProgram(t, bin, "xds_par", `echo " !!! ERROR !!! INSUFFICIENT PERCENTAGE (< 50%) OF INDEXED REFLECTIONS"`)

	_, err := selectImpl(t, newEnv(bin), stage.IndexerXDS).Run(context.Background(), newJob(t, nil))

	var programErr *driver.ExternalProgramError
	require.ErrorAs(t, err, &programErr)
}

func TestAimlessScalesMosflmOutput(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		status string
		fails  bool
	}{
		{name: "normal", status: " AIMLESS:  ** Normal termination **"},
		{name: "abnormal", status: " AIMLESS:  ** No reflections **", fails: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			bin := t.TempDir()
			writeProgram(t, bin, "aimless", `
echo "$@" > aimless.args
cat > aimless.stdin
echo "Summary data for Project: p Crystal: c Dataset: d"
echo "High resolution limit                      1.50"
echo "Rmerge  (within I+/I-)     0.050   0.020   0.600"
echo "Completeness                  99.5   100.0    98.0"
echo "Multiplicity                   6.2     6.0     5.9"
echo "`+tc.status+`"`)

			job := newJob(t, map[string]string{stages.ParamDMin: "1.5"})
			require.NoError(t, os.MkdirAll(job.WorkingDir, 0o755))
			require.NoError(t, os.WriteFile(filepath.Join(job.WorkingDir, "integrated.mtz"), []byte("mtz"), 0o644))

			job.Upstream[stage.Integrater] = logparse.NewRecord("mosflm.integrate", nil)

			record, err := selectImpl(t, newEnv(bin), stage.ScalerCCP4A).Run(context.Background(), job)
			if tc.fails {
				var programErr *driver.ExternalProgramError
				require.ErrorAs(t, err, &programErr)
				assert.Equal(t, "No reflections", programErr.Marker)

				return
			}

			require.NoError(t, err)

			completeness, err := record.Number("completeness")
			require.NoError(t, err)
			assert.InDelta(t, 99.5, completeness, 1e-9)

			rmerge, err := record.Number("rmerge")
			require.NoError(t, err)
			assert.InDelta(t, 0.05, rmerge, 1e-9)

			args, err := os.ReadFile(filepath.Join(job.WorkingDir, "aimless.args"))
			require.NoError(t, err)
			assert.Contains(t, string(args), "hklin "+filepath.Join(job.WorkingDir, "integrated.mtz"))

			stdin, err := os.ReadFile(filepath.Join(job.WorkingDir, "aimless.stdin"))
			require.NoError(t, err)
			assert.Contains(t, string(stdin), "resolution high 1.5")
		})
	}
}

func TestMosflmNeedsUpstreamCell(t *testing.T) {
	t.Parallel()

	bin := t.TempDir()
	writeProgram(t, bin, "ipmosflm", `echo "Integration completed"`)

	_, err := selectImpl(t, newEnv(bin), stage.IntegraterMosflmR).Run(context.Background(), newJob(t, nil))
	require.Error(t, err)
	assert.NotErrorAs(t, err, new(*logparse.ParseError))
	assert.NotErrorAs(t, err, new(*driver.NotAvailableError))
}
