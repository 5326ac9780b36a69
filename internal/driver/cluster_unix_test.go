//go:build linux || darwin

package driver_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xia2/xia2-go/internal/driver"
	"github.com/xia2/xia2-go/pkg/log"
)

func TestClusterDriverShellScheduler(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	program := writeProgram(t, dir, "summer", `total=0; while read -r n; do total=$((total + n)); done; echo "sum $total"; echo "note" >&2; exit 4`)

	handle := driver.NewClusterDriver(driver.NewShellScheduler(log.New()), log.New(),
		driver.WithPollInterval(20*time.Millisecond))
	require.NoError(t, handle.Configure(program))
	handle.SetWorkingDir(dir)

	for _, line := range []string{"1", "2", "3"} {
		require.NoError(t, handle.Feed(line))
	}

	require.NoError(t, handle.Start(context.Background()))
	assert.Equal(t, driver.Running, handle.State())
	require.NoError(t, handle.CloseAndWait())

	lines, err := handle.AllOutput()
	require.NoError(t, err)
	assert.Equal(t, []string{"sum 6", "note"}, lines)
	assert.Equal(t, 4, handle.ExitCode())

	leftovers, err := filepath.Glob(filepath.Join(dir, "J*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestClusterDriverMissingExecutable(t *testing.T) {
	t.Parallel()

	handle := driver.NewClusterDriver(driver.NewShellScheduler(log.New()), log.New(),
		driver.WithPollInterval(20*time.Millisecond))
	require.NoError(t, handle.Configure("xia2-definitely-not-installed"))
	handle.SetWorkingDir(t.TempDir())

	require.NoError(t, handle.Start(context.Background()))

	var notAvailable *driver.NotAvailableError
	require.ErrorAs(t, handle.CloseAndWait(), &notAvailable)
	assert.Equal(t, driver.Failed, handle.State())
}

func TestClusterDriverCancel(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	program := writeProgram(t, dir, "sleeper", "sleep 30")

	handle := driver.NewClusterDriver(driver.NewShellScheduler(log.New()), log.New(),
		driver.WithPollInterval(20*time.Millisecond), driver.WithJobTimeout(200*time.Millisecond))
	require.NoError(t, handle.Configure(program))
	handle.SetWorkingDir(dir)
	require.NoError(t, handle.Start(context.Background()))

	var cancelled *driver.CancelledError
	require.ErrorAs(t, handle.CloseAndWait(), &cancelled)
	assert.Equal(t, driver.Failed, handle.State())
}

// fakeQueue plays qsub, qstat and qdel. Submitted scripts run synchronously through bash.
type fakeQueue struct {
	mu        sync.Mutex
	calls     []string
	stderr    string
	pollsLeft int
}

func (queue *fakeQueue) run(_ context.Context, dir, name string, args ...string) ([]byte, error) {
	queue.mu.Lock()
	defer queue.mu.Unlock()

	queue.calls = append(queue.calls, name+" "+strings.Join(args, " "))

	switch name {
	case "qsub":
		script := args[len(args)-1]

		if err := exec.Command("bash", script).Run(); err != nil { //nolint:gosec
			return nil, err
		}

		if queue.stderr != "" {
			if err := os.WriteFile(script+".e1234", []byte(queue.stderr), 0o644); err != nil {
				return nil, err
			}
		}

		return []byte(`Your job 1234 ("` + filepath.Base(script) + `") has been submitted`), nil
	case "qstat":
		if queue.pollsLeft > 0 {
			queue.pollsLeft--
			return []byte("job_number: 1234"), nil
		}

		return []byte("Following jobs do not exist:\n1234"), nil
	}

	return nil, nil
}

func TestClusterDriverSGE(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	program := writeProgram(t, dir, "indexer", `read -r line; echo "indexed $line"`)

	queue := &fakeQueue{pollsLeft: 2}

	scheduler, err := driver.NewSGEScheduler(`qsub -q "all.q"`, queue.run, log.New())
	require.NoError(t, err)

	handle := driver.NewClusterDriver(scheduler, log.New(), driver.WithPollInterval(10*time.Millisecond))
	require.NoError(t, handle.Configure(program))
	require.NoError(t, handle.Feed("sweep"))
	handle.SetWorkingDir(dir)
	handle.SetCPUThreads(4)

	require.NoError(t, handle.Start(context.Background()))
	require.NoError(t, handle.CloseAndWait())

	lines, err := handle.AllOutput()
	require.NoError(t, err)
	assert.Equal(t, []string{"indexed sweep"}, lines)

	require.GreaterOrEqual(t, len(queue.calls), 4)
	assert.Regexp(t, `^qsub -q all\.q -V -cwd -pe smp 4 .*/Jindexer_[0-9a-f]{8}\.sh$`, queue.calls[0])
	assert.Equal(t, "qstat -j 1234", queue.calls[1])
}

func TestClusterDriverSGECommandNotFound(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	program := writeProgram(t, dir, "integrater", "true")

	queue := &fakeQueue{stderr: "bash: integrater: command not found\n"}

	scheduler, err := driver.NewSGEScheduler("", queue.run, log.New())
	require.NoError(t, err)

	handle := driver.NewClusterDriver(scheduler, log.New(), driver.WithPollInterval(10*time.Millisecond))
	require.NoError(t, handle.Configure(program))
	handle.SetWorkingDir(dir)
	require.NoError(t, handle.Start(context.Background()))

	var notAvailable *driver.NotAvailableError
	require.ErrorAs(t, handle.CloseAndWait(), &notAvailable)
	assert.Contains(t, notAvailable.Reason, "command not found")
}

func TestNewSGESchedulerRejectsBadQuoting(t *testing.T) {
	t.Parallel()

	_, err := driver.NewSGEScheduler(`qsub -q "unterminated`, nil, log.New())

	var cfgErr *driver.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}
