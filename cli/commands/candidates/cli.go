// Package candidates provides the command checking which implementation of every stage can run here.
package candidates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/options"
	"github.com/xia2/xia2-go/pkg/log"
)

const (
	CommandName = "candidates"

	JSONFlagName        = "json"
	ConcurrencyFlagName = "concurrency"
)

// Options are the flags of the candidates command.
type Options struct {
	JSON        bool
	Concurrency int
}

// Candidate is the availability of one candidate as printed.
type Candidate struct {
	Stage     string `json:"stage"`
	Candidate string `json:"candidate"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

// NewCommand returns the candidates command.
func NewCommand(opts *options.Options) *cli.Command {
	cmdOpts := &Options{}

	return &cli.Command{
		Name:      CommandName,
		Usage:     "Check every implementation of every stage for availability, in priority order.",
		UsageText: "xia2 [global options] candidates [--json]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        JSONFlagName,
				Usage:       "Prints the results as JSON.",
				Destination: &cmdOpts.JSON,
			},
			&cli.IntFlag{
				Name:        ConcurrencyFlagName,
				Usage:       "Number of checks run at once. No limit when 0.",
				Destination: &cmdOpts.Concurrency,
			},
		},
		Action: func(c *cli.Context) error {
			return Run(opts.Context(c.Context, opts.Logger), opts.Logger, opts, cmdOpts)
		},
	}
}

// Run checks every candidate concurrently and prints the results.
func Run(ctx context.Context, l log.Logger, opts *options.Options, cmdOpts *Options) error {
	catalog, err := opts.Catalog()
	if err != nil {
		return err
	}

	env, err := opts.StageEnv(l)
	if err != nil {
		return err
	}

	results, err := catalog.CheckAvailability(ctx, env, cmdOpts.Concurrency)
	if err != nil {
		return err
	}

	candidates := make([]Candidate, len(results))

	for i, result := range results {
		candidates[i] = Candidate{
			Stage:     result.ID.Kind().String(),
			Candidate: result.ID.Name(),
			Status:    result.Status.String(),
		}

		if result.Err != nil {
			candidates[i].Reason = result.Err.Error()
		}

		l.WithField(log.FieldKeyCandidate, result.ID.String()).Debugf("%s: %s", result.Status, candidates[i].Reason)
	}

	if cmdOpts.JSON {
		return writeJSON(opts.Writer, candidates)
	}

	return write(opts.Writer, candidates)
}

func write(w io.Writer, candidates []Candidate) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "STAGE\tCANDIDATE\tSTATUS\tREASON")

	for _, candidate := range candidates {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", candidate.Stage, candidate.Candidate, candidate.Status, candidate.Reason)
	}

	return errors.New(tw.Flush())
}

func writeJSON(w io.Writer, candidates []Candidate) error {
	data, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return errors.New(err)
	}

	_, err = w.Write(append(data, '\n'))

	return errors.New(err)
}
