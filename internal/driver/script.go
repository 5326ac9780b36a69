package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/xia2/xia2-go/internal/errors"
)

const heredocPrefix = "XIA2_EOF_"

// Script describes one batch job: a bash script that runs the program with its stdin from a heredoc, sends the
// merged output to `<Name>.xout` and the exit status to `<Name>.xstatus`, all inside Dir.
type Script struct {
	Name        string
	Dir         string
	Executable  string
	Args        []string
	Stdin       []string
	Env         []EnvChange
	ScratchDirs []string
}

// Path is the location of the script itself.
func (script Script) Path() string {
	return filepath.Join(script.Dir, script.Name+".sh")
}

// OutputPath is where the program's merged output goes.
func (script Script) OutputPath() string {
	return filepath.Join(script.Dir, script.Name+".xout")
}

// StatusPath is where the program's exit status goes.
func (script Script) StatusPath() string {
	return filepath.Join(script.Dir, script.Name+".xstatus")
}

// Render returns the script text.
func (script Script) Render() string {
	var sb strings.Builder

	sb.WriteString("#!/bin/bash\n")

	for _, change := range script.Env {
		if change.Prepend {
			fmt.Fprintf(&sb, "export %s=%s${%s:+%c${%s}}\n",
				change.Name, shellquote.Join(change.Value), change.Name, os.PathListSeparator, change.Name)

			continue
		}

		fmt.Fprintf(&sb, "export %s=%s\n", change.Name, shellquote.Join(change.Value))
	}

	fmt.Fprintf(&sb, "cd %s\n", shellquote.Join(script.Dir))
	fmt.Fprintf(&sb, "rm -f %s\n", shellquote.Join(script.Name+".xstatus"))

	for _, dir := range script.ScratchDirs {
		fmt.Fprintf(&sb, "mkdir -p %s\n", shellquote.Join(dir))
	}

	delimiter := script.heredocDelimiter()
	command := shellquote.Join(append([]string{script.Executable}, script.Args...)...)

	fmt.Fprintf(&sb, "%s << '%s' > %s 2>&1\n", command, delimiter, shellquote.Join(script.Name+".xout"))

	for _, line := range script.Stdin {
		sb.WriteString(line + "\n")
	}

	sb.WriteString(delimiter + "\n")
	fmt.Fprintf(&sb, "echo \"$?\" > %s\n", shellquote.Join(script.Name+".xstatus"))

	return sb.String()
}

// heredocDelimiter ends the stdin of the job. It is derived from the job name and never equals a stdin line.
func (script Script) heredocDelimiter() string {
	delimiter := heredocPrefix + strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}

		return '_'
	}, script.Name)

	for slices.Contains(script.Stdin, delimiter) {
		delimiter += "_"
	}

	return delimiter
}

// Write renders the script to Path.
func (script Script) Write() error {
	if err := os.MkdirAll(script.Dir, 0o755); err != nil {
		return errors.New(err)
	}

	if err := os.WriteFile(script.Path(), []byte(script.Render()), 0o755); err != nil { //nolint:gosec
		return errors.New(err)
	}

	return nil
}

// Cleanup removes the files the job produced.
func (script Script) Cleanup() {
	for _, path := range []string{script.Path(), script.OutputPath(), script.StatusPath()} {
		_ = os.Remove(path)
	}
}
