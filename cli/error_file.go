package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-wordwrap"

	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/pipeline"
	"github.com/xia2/xia2-go/internal/stage"
	"github.com/xia2/xia2-go/internal/util"
	"github.com/xia2/xia2-go/options"
)

const errorFileWidth = 78

// diagnostic is what the error file tells about one failure.
type diagnostic struct {
	message     string
	sweep       string
	stage       string
	candidate   string
	commandLine string
	workingDir  string
	output      []string
}

// WriteErrorFile writes the diagnostic of err to the xia2.error file of dir and returns its path.
func WriteErrorFile(dir string, err error) (string, error) {
	path := filepath.Join(dir, options.ErrorFileName)

	if err := util.EnsureDirectory(dir); err != nil {
		return path, err
	}

	return path, util.WriteFileAtomic(path, []byte(FormatErrorFile(err)), 0o644)
}

// FormatErrorFile renders err for the error file. Each failure names the stage, the candidate, the command line
// and the last output of the program that failed, as far as they are known.
func FormatErrorFile(err error) string {
	var sb strings.Builder

	for i, err := range errors.UnwrapMultiErrors(err) {
		if i > 0 {
			sb.WriteString("\n")
		}

		diagnose(err).write(&sb)
	}

	return sb.String()
}

func diagnose(err error) diagnostic {
	diag := diagnostic{message: err.Error()}

	var (
		runErr         *stage.RunError
		retriesErr     *pipeline.RetriesExhaustedError
		toolchainErr   *pipeline.ToolchainUnavailableError
		preselectedErr *stage.PreselectedNotAvailableError
	)

	if errors.As(err, &retriesErr) {
		diag.sweep = retriesErr.Sweep
		diag.stage = retriesErr.Kind.String()
		diag.candidate = retriesErr.Candidate.Name()
	}

	if errors.As(err, &toolchainErr) {
		diag.sweep = toolchainErr.Sweep
		diag.stage = toolchainErr.Kind.String()

		names := make([]string, len(toolchainErr.Tried))
		for i, tried := range toolchainErr.Tried {
			names[i] = tried.ID.Name()
		}

		if len(names) > 0 {
			diag.candidate = "none available (tried " + strings.Join(names, ", ") + ")"
		}
	}

	if errors.As(err, &preselectedErr) {
		diag.stage = preselectedErr.ID.Kind().String()
		diag.candidate = preselectedErr.ID.Name()
	}

	if errors.As(err, &runErr) {
		diag.sweep = runErr.Sweep
		diag.stage = runErr.ID.Kind().String()
		diag.candidate = runErr.ID.Name()
		diag.commandLine = runErr.CommandLine
		diag.workingDir = runErr.WorkingDir
		diag.output = runErr.Output
	}

	return diag
}

func (diag diagnostic) write(sb *strings.Builder) {
	fmt.Fprintf(sb, "Error: %s\n", wordwrap.WrapString(diag.message, errorFileWidth))

	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(sb, "%s: %s\n", label, value)
		}
	}

	field("Sweep", diag.sweep)
	field("Stage", diag.stage)
	field("Candidate", diag.candidate)
	field("Command line", diag.commandLine)
	field("Working directory", diag.workingDir)

	if len(diag.output) == 0 {
		return
	}

	sb.WriteString("Last output:\n")

	for _, line := range diag.output {
		sb.WriteString("    " + line + "\n")
	}
}
