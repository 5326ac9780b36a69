package driver

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/xia2/xia2-go/internal/errors"
)

const logFileTrailer = "# command line:"

// writeLogFile writes the captured output followed by the command line, with the working directory prefix
// stripped so logs stay readable after a project is moved.
func writeLogFile(path, workingDir, commandLine string, output []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.New(err)
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.New(err)
	}

	writer := bufio.NewWriter(file)

	for _, line := range output {
		_, _ = writer.WriteString(line + "\n")
	}

	if workingDir != "" {
		commandLine = strings.ReplaceAll(commandLine, strings.TrimSuffix(workingDir, string(filepath.Separator))+string(filepath.Separator), "")
	}

	_, _ = writer.WriteString(logFileTrailer + "\n# " + commandLine + "\n")

	if err := writer.Flush(); err != nil {
		file.Close() //nolint:errcheck
		return errors.New(err)
	}

	return errors.New(file.Close())
}
