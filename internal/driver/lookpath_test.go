//go:build linux || darwin

package driver_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xia2/xia2-go/internal/driver"
)

func TestLookPathIn(t *testing.T) {
	t.Parallel()

	first, second := t.TempDir(), t.TempDir()
	writeProgram(t, second, "xia2-lookup", "true")
	require.NoError(t, os.WriteFile(filepath.Join(first, "xia2-lookup"), []byte("not executable"), 0o644))

	searchPath := first + string(os.PathListSeparator) + second

	path, err := driver.LookPathIn("xia2-lookup", searchPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(second, "xia2-lookup"), path)

	cached, err := driver.LookPathIn("xia2-lookup", searchPath)
	require.NoError(t, err)
	assert.Equal(t, path, cached)

	_, err = driver.LookPathIn("xia2-lookup", first)

	var notAvailable *driver.NotAvailableError
	require.ErrorAs(t, err, &notAvailable)
	assert.Equal(t, "xia2-lookup", notAvailable.Executable)
}

func TestFactoryTypes(t *testing.T) {
	t.Parallel()

	simple, err := driver.NewFactory(driver.FactoryConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, driver.TypeSimple, simple.Type())
	assert.IsType(t, &driver.LocalDriver{}, simple.New())

	cluster, err := driver.NewFactory(driver.FactoryConfig{Type: driver.TypeCluster}, nil)
	require.NoError(t, err)
	assert.IsType(t, &driver.ClusterDriver{}, cluster.New())

	_, err = driver.NewFactory(driver.FactoryConfig{Type: "condor"}, nil)

	var cfgErr *driver.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	typ, err := driver.ParseType("QSUB")
	require.NoError(t, err)
	assert.Equal(t, driver.TypeQsub, typ)
}
