// Package status provides the command printing the stage flags of every sweep.
package status

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/xia2/xia2-go/cli/flags"
	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/pipeline"
	"github.com/xia2/xia2-go/internal/stage"
	"github.com/xia2/xia2-go/options"
)

const (
	CommandName = "status"

	JSONFlagName = "json"
)

// NewCommand returns the status command.
func NewCommand(opts *options.Options) *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:      CommandName,
		Usage:     "Print the state of every stage of every sweep.",
		UsageText: "xia2 [global options] status [--json]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        JSONFlagName,
				EnvVars:     flags.EnvVars("status-" + JSONFlagName),
				Usage:       "Prints the saved project state as JSON.",
				Destination: &asJSON,
			},
		},
		Action: func(_ *cli.Context) error {
			project, err := opts.Store().Load(options.AppName)
			if err != nil {
				return err
			}

			if asJSON {
				return WriteJSON(opts.Writer, project)
			}

			return Write(opts.Writer, project)
		},
	}
}

// Write prints one line per sweep with the status and candidate of each stage.
func Write(w io.Writer, project *pipeline.Project) error {
	sweeps := project.Sweeps()
	if len(sweeps) == 0 {
		_, err := fmt.Fprintln(w, "No sweeps have been processed.")
		return errors.New(err)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	header := []string{"SWEEP"}
	for _, kind := range stage.Kinds {
		header = append(header, strings.ToUpper(kind.String()))
	}

	header = append(header, "ACCEPTED")
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, state := range sweeps {
		row := []string{state.Name()}
		for _, kind := range stage.Kinds {
			row = append(row, Describe(state.Slot(kind)))
		}

		accepted := "no"
		if state.Complete() {
			accepted = "yes"
		}

		row = append(row, accepted)
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	return errors.New(tw.Flush())
}

// Describe renders one stage, such as `valid (dials)` or `not configured`.
func Describe(slot pipeline.Slot) string {
	if slot.Status == pipeline.Absent && slot.NotConfigured {
		return "not configured"
	}

	text := slot.Status.String()

	if slot.Candidate != stage.None {
		text += " (" + slot.Candidate.Name() + ")"
	}

	if slot.Attempts > 0 {
		text += fmt.Sprintf(" %d failed", slot.Attempts)
	}

	return text
}

// WriteJSON prints the project state document.
func WriteJSON(w io.Writer, project *pipeline.Project) error {
	data, err := json.MarshalIndent(project, "", "  ")
	if err != nil {
		return errors.New(err)
	}

	_, err = w.Write(append(data, '\n'))

	return errors.New(err)
}
