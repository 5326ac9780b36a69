//go:build linux || darwin

package driver

import (
	"context"
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xia2/xia2-go/pkg/log"
)

type brokenStdin struct {
	io.WriteCloser
}

func (brokenStdin) Write([]byte) (int, error) {
	return 0, syscall.EIO
}

func TestLocalDriverStdinWriteFailureKillsProgram(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		feedAtStart bool
	}{
		{name: "buffered input", feedAtStart: true},
		{name: "input fed while running"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			handle := NewLocalDriver(log.New())
			handle.wrapStdin = func(pipe io.WriteCloser) io.WriteCloser { return brokenStdin{pipe} }

			require.NoError(t, handle.Configure("sleep", "30"))

			var err error

			if tc.feedAtStart {
				require.NoError(t, handle.Feed("line"))
				err = handle.Start(context.Background())
			} else {
				require.NoError(t, handle.Start(context.Background()))
				err = handle.Feed("line")
			}

			require.ErrorIs(t, err, syscall.EIO)
			assert.Equal(t, Failed, handle.State())
			require.NotNil(t, handle.cmd.ProcessState, "the program must have been reaped")
			require.Error(t, handle.ctx.Err())

			_, err = handle.AllOutput()
			require.Error(t, err)

			var stateErr *InvalidStateError
			require.ErrorAs(t, handle.CloseAndWait(), &stateErr)
		})
	}
}
