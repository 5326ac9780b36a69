package main

import (
	"context"
	"os"

	"github.com/xia2/xia2-go/cli"
	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/os/signal"
	"github.com/xia2/xia2-go/options"
	"github.com/xia2/xia2-go/pkg/log"
)

// The main entrypoint for xia2
func main() {
	opts := options.NewOptions()

	defer errors.Recover(checkForErrorsAndExit(opts))

	app := cli.NewApp(opts)

	ctx, cancel := signal.NotifyContext(log.ContextWithLogger(context.Background(), opts.Logger))
	err := app.RunContext(ctx, os.Args)

	cancel()
	checkForErrorsAndExit(opts)(err)
}

// If there is an error, display it in the console, write the xia2.error diagnostic and exit with the code of the
// error. Otherwise, exit 0.
func checkForErrorsAndExit(opts *options.Options) func(error) {
	return func(err error) {
		logger := opts.Logger

		if err == nil {
			os.Exit(int(cli.ExitCodeSuccess))
		}

		logger.Error(err.Error())

		if errStack := errors.ErrorStack(err); errStack != "" {
			logger.Trace(errStack)
		}

		dir := opts.WorkingDir
		if opts.Settings != nil {
			dir = opts.Settings.WorkingDir
		}

		if dir != "" {
			if path, writeErr := cli.WriteErrorFile(dir, err); writeErr != nil {
				logger.Warnf("Writing %s: %v", path, writeErr)
			} else {
				logger.Infof("Details written to %s", path)
			}
		}

		os.Exit(int(cli.ExitCodeOf(err)))
	}
}
