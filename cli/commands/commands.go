// Package commands lists the xia2 commands.
package commands

import (
	"github.com/urfave/cli/v2"

	"github.com/xia2/xia2-go/cli/commands/candidates"
	"github.com/xia2/xia2-go/cli/commands/invalidate"
	"github.com/xia2/xia2-go/cli/commands/report"
	"github.com/xia2/xia2-go/cli/commands/run"
	"github.com/xia2/xia2-go/cli/commands/status"
	"github.com/xia2/xia2-go/options"
)

// New returns every command.
func New(opts *options.Options) []*cli.Command {
	return []*cli.Command{
		run.NewCommand(opts),
		status.NewCommand(opts),
		invalidate.NewCommand(opts),
		candidates.NewCommand(opts),
		report.NewCommand(opts),
	}
}
