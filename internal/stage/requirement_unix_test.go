//go:build linux || darwin

package stage_test

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xia2/xia2-go/internal/driver"
	"github.com/xia2/xia2-go/internal/stage"
	"github.com/xia2/xia2-go/pkg/log"
)

func TestRequirementVersion(t *testing.T) {
	t.Parallel()

	program := filepath.Join(t.TempDir(), "dials.version")
	require.NoError(t, os.WriteFile(program, []byte("#!/bin/sh\necho 'DIALS 3.12.1'\n"), 0o755))

	drivers, err := driver.NewFactory(driver.FactoryConfig{}, log.New())
	require.NoError(t, err)

	env := stage.Env{Drivers: drivers}
	pattern := regexp.MustCompile(`DIALS (\S+)`)

	testCases := []struct {
		min    string
		status stage.Status
	}{
		{"3.0", stage.Available},
		{"3.12.1", stage.Available},
		{"3.13", stage.Unavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.min, func(t *testing.T) {
			t.Parallel()

			req := stage.Requirement{Version: &stage.VersionCheck{Executable: program, Pattern: pattern, Min: tc.min}}
			attempt := stage.Require(context.Background(), env, req, fakeImpl{id: stage.IndexerDials})
			assert.Equal(t, tc.status, attempt.Status, "%v", attempt.Err)
		})
	}
}
