//go:build linux || darwin

package decorator_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xia2/xia2-go/internal/decorator"
	"github.com/xia2/xia2-go/internal/driver"
	"github.com/xia2/xia2-go/pkg/log"
)

func shell(t *testing.T, script string) *driver.LocalDriver {
	t.Helper()

	handle := driver.NewLocalDriver(log.New())
	require.NoError(t, handle.Configure("/bin/sh", "-c", script))

	return handle
}

func run(t *testing.T, handle driver.Handle) {
	t.Helper()

	require.NoError(t, handle.Start(context.Background()))
	require.NoError(t, handle.CloseAndWait())
}

func TestDecoratorComposition(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		script string
		marker string
	}{
		{"outer check", `echo " !!! ERROR !!! CANNOT READ XPARM.XDS"`, "[XDS] cannot read xparm.xds"},
		{"inner check runs first", `echo "Sorry: bad input"; echo " !!! ERROR !!! ALSO BAD"`, "[DIALS] bad input"},
		{"no markers", `echo fine`, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			local := shell(t, tc.script)
			inner := decorator.Decorate(local, decorator.DIALSErrors)
			outer := decorator.Decorate(inner, decorator.XDSErrors)

			var stateErr *driver.InvalidStateError
			require.ErrorAs(t, outer.CheckForSuiteErrors(), &stateErr)

			run(t, outer)

			assert.Same(t, local, decorator.Innermost(outer))
			assert.Equal(t, driver.Closed, local.State())

			err := outer.CheckForSuiteErrors()
			if tc.marker == "" {
				require.NoError(t, err)
				return
			}

			var programErr *driver.ExternalProgramError
			require.ErrorAs(t, err, &programErr)
			assert.Equal(t, tc.marker, programErr.Marker)
		})
	}
}

func TestDecoratorKeepsSpawnBehaviour(t *testing.T) {
	t.Parallel()

	plain := shell(t, `read -r x; echo "in $x"; echo err >&2`)
	require.NoError(t, plain.Feed("a"))
	run(t, plain)

	local := shell(t, `read -r x; echo "in $x"; echo err >&2`)
	decorated := decorator.Decorate(decorator.Decorate(local, decorator.GenericErrors), decorator.CCP4Errors)
	require.NoError(t, decorated.Feed("a"))
	run(t, decorated)

	want, err := plain.AllOutput()
	require.NoError(t, err)

	got, err := decorated.AllOutput()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, plain.Args(), decorated.Args())
}

func TestCCP4(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	hklin := filepath.Join(dir, "in.mtz")
	require.NoError(t, os.WriteFile(hklin, []byte("mtz"), 0o644))

	program := filepath.Join(dir, "aimless")
	require.NoError(t, os.WriteFile(program, []byte(`#!/bin/sh
echo "args: $*"
echo ' $TABLE:  Rmerge vs Batch:'
echo ' $GRAPHS: Rmerge:N:1,2: $$'
echo ' N  Rmerge $$'
echo ' $$'
echo '  1  0.05'
echo ' $$'
echo ' Aimless:  ** Normal termination **'
`), 0o755))

	handle := driver.NewLocalDriver(log.New())
	require.NoError(t, handle.Configure(program))

	ccp4 := decorator.NewCCP4(handle)

	var cfgErr *driver.ConfigurationError
	require.ErrorAs(t, ccp4.CheckHklin(), &cfgErr)

	ccp4.SetHklin(hklin)
	ccp4.SetHklout(hklin)
	require.NoError(t, ccp4.CheckHklin())
	require.ErrorAs(t, ccp4.CheckHklout(), &cfgErr)

	ccp4.SetHklout(filepath.Join(dir, "out.mtz"))
	require.NoError(t, ccp4.CheckHklout())
	assert.Contains(t, ccp4.Describe(), "hklin "+hklin)

	run(t, ccp4)
	require.NoError(t, ccp4.CheckForSuiteErrors())

	lines, err := ccp4.AllOutput()
	require.NoError(t, err)
	assert.Equal(t, "args: hklin "+hklin+" hklout "+filepath.Join(dir, "out.mtz"), lines[0])

	status, err := ccp4.CCP4Status()
	require.NoError(t, err)
	assert.Equal(t, "Normal termination", status)

	tables, err := ccp4.LogGraph()
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, [][]string{{"1", "0.05"}}, tables[0].Rows)
}
