//go:build linux || darwin

package exec_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/os/exec"
)

func TestExitCodeUnix(t *testing.T) {
	t.Parallel()

	for _, index := range []int{0, 1, 2, 42, 255} {
		cmd := exec.Command("/bin/sh", "-c", "exit "+strconv.Itoa(index))
		err := cmd.Run()

		if index == 0 {
			require.NoError(t, err)
		} else {
			require.Error(t, err)
		}

		retCode, err := exec.ExitCode(err)
		require.NoError(t, err)
		assert.Equal(t, index, retCode)
	}

	explicit := errors.New("this is an explicit error")
	retCode, retErr := exec.ExitCode(explicit)
	require.Error(t, retErr)
	assert.Equal(t, explicit, retErr)
	assert.Equal(t, 0, retCode)
}

func TestGracefullyShutdownKillsOnTimeout(t *testing.T) {
	t.Parallel()

	cmd := exec.Command("/bin/sh", "-c", "sleep 30")
	require.NoError(t, cmd.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	stop := cmd.RegisterGracefullyShutdown(ctx)
	defer stop()

	started := time.Now()
	err := cmd.Wait()

	require.Error(t, err)
	assert.Less(t, time.Since(started), 10*time.Second)
}
