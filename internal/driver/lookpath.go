package driver

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/xia2/xia2-go/internal/errors"
)

type lookResult struct {
	path string
	err  error
}

// lookPathCache is shared by every handle and by concurrent availability checks. Keys include the search path.
var lookPathCache = xsync.NewMapOf[string, lookResult]()

// LookPath resolves executable against the current PATH.
func LookPath(executable string) (string, error) {
	return LookPathIn(executable, os.Getenv("PATH"))
}

// LookPathIn resolves executable against searchPath. Names containing a path separator are checked directly.
// Results are cached per (name, searchPath).
func LookPathIn(executable, searchPath string) (string, error) {
	if strings.ContainsRune(executable, '/') || strings.ContainsRune(executable, filepath.Separator) {
		if err := checkExecutable(executable); err != nil {
			return "", errors.New(&NotAvailableError{Executable: executable, Err: err})
		}

		return executable, nil
	}

	res, _ := lookPathCache.LoadOrCompute(executable+"\x00"+searchPath, func() lookResult {
		for _, dir := range filepath.SplitList(searchPath) {
			if dir == "" {
				dir = "."
			}

			for _, name := range candidateNames(executable) {
				path := filepath.Join(dir, name)

				if checkExecutable(path) == nil {
					return lookResult{path: path}
				}
			}
		}

		return lookResult{err: &NotAvailableError{Executable: executable, Reason: "not found in PATH"}}
	})

	if res.err != nil {
		return "", errors.New(res.err)
	}

	return res.path, nil
}

func candidateNames(executable string) []string {
	if runtime.GOOS != "windows" || filepath.Ext(executable) != "" {
		return []string{executable}
	}

	return []string{executable + ".exe", executable + ".bat", executable}
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if info.IsDir() {
		return errors.Errorf("%s is a directory", path)
	}

	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		return errors.New(os.ErrPermission)
	}

	return nil
}
