// Package driver runs external analysis programs. A Handle owns exactly one invocation: it records the
// command line and the scripted stdin, runs the program (locally or through a cluster scheduler) with stderr
// merged into stdout, and keeps the captured lines for the stage that created it.
package driver

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/pkg/log"
)

// State is the lifecycle state of a Handle.
type State int

const (
	Unstarted State = iota
	Running
	Closed
	Failed
)

var stateNames = map[State]string{
	Unstarted: "unstarted",
	Running:   "running",
	Closed:    "closed",
	Failed:    "failed",
}

func (state State) String() string {
	if name, ok := stateNames[state]; ok {
		return name
	}

	return fmt.Sprintf("state(%d)", int(state))
}

// Handle is the contract shared by local and cluster execution. Start and CloseAndWait form one blocking
// unit from the caller's point of view; cancelling the context given to Start terminates the program and
// leaves the handle Failed with no readable output.
type Handle interface {
	// Configure sets the executable and replaces the argument list.
	Configure(executable string, args ...string) error
	// AddArgs appends to the argument list. Only legal before Start.
	AddArgs(args ...string) error
	Executable() string
	Args() []string

	// Feed appends a line to the scripted stdin. Legal while Unstarted or Running.
	Feed(line string) error
	Start(ctx context.Context) error
	CloseAndWait() error
	// AllOutput returns the captured lines in emission order. Only legal once Closed.
	AllOutput() ([]string, error)
	// CheckForErrors scans the tail of the output for generic fatal markers such as segfaults.
	CheckForErrors() error

	State() State
	ExitCode() int

	WorkingDir() string
	SetWorkingDir(dir string)
	// AddWorkingEnvironment prepends value to the variable, keeping what the parent environment holds.
	AddWorkingEnvironment(name, value string)
	// SetWorkingEnvironment replaces the variable.
	SetWorkingEnvironment(name, value string)
	SetCPUThreads(n int)
	CPUThreads() int

	SetTask(task string)
	// Describe returns the task and command line, for logs and the error artifact.
	Describe() string
	// WriteLogFile asks for the captured output to be written to path once the handle closes.
	WriteLogFile(path string)
}

// invocation holds what local and cluster handles have in common.
type invocation struct {
	mu sync.Mutex

	logger log.Logger

	executable string
	args       []string
	stdin      []string
	output     []string
	state      State
	exitCode   int

	workingDir string
	addEnv     map[string][]string
	setEnv     map[string]string
	cpuThreads int
	task       string
	logPath    string
}

func newInvocation(logger log.Logger) *invocation {
	if logger == nil {
		logger = log.Default()
	}

	return &invocation{
		logger:     logger,
		addEnv:     make(map[string][]string),
		setEnv:     make(map[string]string),
		cpuThreads: 1,
	}
}

func (inv *invocation) Configure(executable string, args ...string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if strings.TrimSpace(executable) == "" {
		return errors.New(&ConfigurationError{Msg: "executable must not be empty"})
	}

	if inv.state != Unstarted {
		return errors.New(&InvalidStateError{Op: "configure", State: inv.state})
	}

	inv.executable = executable
	inv.args = append([]string(nil), args...)

	return nil
}

func (inv *invocation) AddArgs(args ...string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.state != Unstarted {
		return errors.New(&InvalidStateError{Op: "add arguments", State: inv.state})
	}

	inv.args = append(inv.args, args...)

	return nil
}

func (inv *invocation) Executable() string {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	return inv.executable
}

func (inv *invocation) Args() []string {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	return append([]string(nil), inv.args...)
}

func (inv *invocation) State() State {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	return inv.state
}

func (inv *invocation) ExitCode() int {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	return inv.exitCode
}

func (inv *invocation) AllOutput() ([]string, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.state != Closed {
		return nil, errors.New(&InvalidStateError{Op: "read output", State: inv.state})
	}

	return append([]string(nil), inv.output...), nil
}

func (inv *invocation) CheckForErrors() error {
	lines, err := inv.AllOutput()
	if err != nil {
		return err
	}

	return ScanMarkers(inv.Executable(), lines, GenericMarkerWindow, GenericMarkers)
}

func (inv *invocation) WorkingDir() string {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	return inv.workingDir
}

func (inv *invocation) SetWorkingDir(dir string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	inv.workingDir = dir
}

func (inv *invocation) AddWorkingEnvironment(name, value string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	inv.addEnv[name] = append(inv.addEnv[name], value)
}

func (inv *invocation) SetWorkingEnvironment(name, value string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	delete(inv.addEnv, name)
	inv.setEnv[name] = value
}

func (inv *invocation) SetCPUThreads(n int) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if n < 1 {
		n = 1
	}

	inv.cpuThreads = n
}

func (inv *invocation) CPUThreads() int {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	return inv.cpuThreads
}

func (inv *invocation) SetTask(task string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	inv.task = task
}

func (inv *invocation) Describe() string {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.task == "" {
		return inv.commandLine()
	}

	return fmt.Sprintf("%s: %s", inv.task, inv.commandLine())
}

func (inv *invocation) WriteLogFile(path string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	inv.logPath = path
}

// Feed for handles that only buffer stdin; the local driver overrides it to also write while running.
func (inv *invocation) Feed(line string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.state != Unstarted && inv.state != Running {
		return errors.New(&InvalidStateError{Op: "feed input", State: inv.state})
	}

	inv.stdin = append(inv.stdin, line)

	return nil
}

// commandLine must be called with mu held.
func (inv *invocation) commandLine() string {
	parts := append([]string{inv.executable}, inv.args...)

	return strings.Join(parts, " ")
}

// environ returns the child environment: the parent's with the handle's additions prepended and replacements
// applied. Must be called with mu held.
func (inv *invocation) environ() []string {
	return mergeEnviron(os.Environ(), inv.addEnv, inv.setEnv)
}

func (inv *invocation) envLookup(name string) (string, bool) {
	for _, kv := range inv.environ() {
		if key, value, ok := strings.Cut(kv, "="); ok && key == name {
			return value, true
		}
	}

	return "", false
}

// envChanges lists the handle's environment changes as `NAME=VALUE` in a stable order, where prepended values
// end with a reference to the variable itself. Used by the cluster script writer. Must be called with mu held.
func (inv *invocation) envChanges() []EnvChange {
	names := make([]string, 0, len(inv.addEnv)+len(inv.setEnv))

	for name := range inv.addEnv {
		names = append(names, name)
	}

	for name := range inv.setEnv {
		names = append(names, name)
	}

	sort.Strings(names)

	changes := make([]EnvChange, 0, len(names))

	for _, name := range names {
		if value, ok := inv.setEnv[name]; ok {
			changes = append(changes, EnvChange{Name: name, Value: value})
			continue
		}

		changes = append(changes, EnvChange{
			Name:    name,
			Value:   strings.Join(inv.addEnv[name], string(os.PathListSeparator)),
			Prepend: true,
		})
	}

	return changes
}

// finish records the outcome of a completed run and writes the log file if one was requested.
// Must be called with mu held.
func (inv *invocation) finish(output []string, exitCode int) {
	inv.output = output
	inv.exitCode = exitCode
	inv.state = Closed

	if inv.logPath == "" {
		return
	}

	if err := writeLogFile(inv.logPath, inv.workingDir, inv.commandLine(), output); err != nil {
		inv.logger.Warnf("Failed to write log file %s: %v", inv.logPath, err)
	}
}

// fail marks the handle Failed and drops any captured output. Must be called with mu held.
func (inv *invocation) fail() {
	inv.output = nil
	inv.state = Failed
}

// EnvChange is one environment modification requested on a handle.
type EnvChange struct {
	Name    string
	Value   string
	Prepend bool
}

func mergeEnviron(base []string, add map[string][]string, set map[string]string) []string {
	env := make(map[string]string, len(base))
	order := make([]string, 0, len(base))

	for _, kv := range base {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}

		if _, seen := env[key]; !seen {
			order = append(order, key)
		}

		env[key] = value
	}

	apply := func(key, value string) {
		if _, seen := env[key]; !seen {
			order = append(order, key)
		}

		env[key] = value
	}

	addKeys := make([]string, 0, len(add))
	for key := range add {
		addKeys = append(addKeys, key)
	}

	sort.Strings(addKeys)

	for _, key := range addKeys {
		values := append([]string(nil), add[key]...)

		if existing, ok := env[key]; ok && existing != "" {
			values = append(values, existing)
		}

		apply(key, strings.Join(values, string(os.PathListSeparator)))
	}

	setKeys := make([]string, 0, len(set))
	for key := range set {
		setKeys = append(setKeys, key)
	}

	sort.Strings(setKeys)

	for _, key := range setKeys {
		apply(key, set[key])
	}

	result := make([]string, 0, len(order))
	for _, key := range order {
		result = append(result, key+"="+env[key])
	}

	return result
}
