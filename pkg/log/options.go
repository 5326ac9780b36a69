package log

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

type Option func(logger *logger)

func WithLevel(level Level) Option {
	return func(logger *logger) {
		logger.Logger.SetLevel(level.ToLogrusLevel())
	}
}

func WithOutput(output io.Writer) Option {
	return func(logger *logger) {
		logger.Logger.SetOutput(output)
	}
}

func WithFormatter(formatter logrus.Formatter) Option {
	return func(logger *logger) {
		logger.Logger.SetFormatter(formatter)
	}
}

func WithHooks(hooks ...logrus.Hook) Option {
	return func(logger *logger) {
		for _, hook := range hooks {
			logger.Logger.AddHook(hook)
		}
	}
}

// WithTerminalFormatter uses a text formatter whose colors follow whether the current output is a terminal.
func WithTerminalFormatter() Option {
	return func(logger *logger) {
		colors := false

		if file, ok := logger.Logger.Out.(*os.File); ok {
			colors = isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
		}

		logger.Logger.SetFormatter(&logrus.TextFormatter{
			DisableColors:          !colors,
			FullTimestamp:          true,
			DisableLevelTruncation: true,
			TimestampFormat:        "15:04:05.000",
		})
	}
}

// WithJSONFormatter writes one JSON object per entry.
func WithJSONFormatter() Option {
	return WithFormatter(&logrus.JSONFormatter{})
}
