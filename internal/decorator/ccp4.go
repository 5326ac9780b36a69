package decorator

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/xia2/xia2-go/internal/driver"
	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/logparse"
)

// ccp4StatusWindow is how many trailing lines hold a CCP4 program's termination status.
const ccp4StatusWindow = 10

// ccp4FileKeywords are the logical file names CCP4 programs take on the command line, in the order they are added.
var ccp4FileKeywords = []string{"hklin", "hklout", "xyzin", "xyzout", "mapin", "mapout"}

// CCP4 is a handle for a CCP4 suite program. Logical files set on it are added to the command line at Start.
type CCP4 struct {
	*Decorated

	files map[string][]string
}

// NewCCP4 wraps handle with the CCP4 error checks. When CLIB is set in the environment its libraries are put
// on the loader path of the program.
func NewCCP4(handle driver.Handle) *CCP4 {
	if clib := os.Getenv("CLIB"); clib != "" && runtime.GOOS != "windows" {
		if runtime.GOOS == "darwin" {
			handle.AddWorkingEnvironment("DYLD_LIBRARY_PATH", clib)
		} else {
			handle.AddWorkingEnvironment("LD_LIBRARY_PATH", clib)
		}
	}

	return &CCP4{
		Decorated: Decorate(handle, CCP4Errors),
		files:     make(map[string][]string),
	}
}

// SetHklin sets one or more input reflection files.
func (ccp4 *CCP4) SetHklin(paths ...string) { ccp4.SetFile("hklin", paths...) }

// SetHklout sets the output reflection file.
func (ccp4 *CCP4) SetHklout(path string) { ccp4.SetFile("hklout", path) }

// SetXyzin sets the input coordinate file.
func (ccp4 *CCP4) SetXyzin(path string) { ccp4.SetFile("xyzin", path) }

// SetXyzout sets the output coordinate file.
func (ccp4 *CCP4) SetXyzout(path string) { ccp4.SetFile("xyzout", path) }

// SetMapin sets the input map.
func (ccp4 *CCP4) SetMapin(path string) { ccp4.SetFile("mapin", path) }

// SetMapout sets the output map.
func (ccp4 *CCP4) SetMapout(path string) { ccp4.SetFile("mapout", path) }

// SetFile sets the paths of a logical file keyword.
func (ccp4 *CCP4) SetFile(keyword string, paths ...string) {
	ccp4.files[strings.ToLower(keyword)] = paths
}

// File returns the paths set for keyword.
func (ccp4 *CCP4) File(keyword string) []string {
	return ccp4.files[strings.ToLower(keyword)]
}

// CheckHklin verifies that input reflection files are set and exist.
func (ccp4 *CCP4) CheckHklin() error {
	hklin := ccp4.files["hklin"]
	if len(hklin) == 0 {
		return errors.New(&driver.ConfigurationError{Msg: "hklin not defined"})
	}

	for _, path := range hklin {
		if _, err := os.Stat(path); err != nil {
			return errors.New(&driver.ConfigurationError{Msg: "hklin " + path + " does not exist"})
		}
	}

	return nil
}

// CheckHklout verifies that the output reflection file is set and differs from the inputs.
func (ccp4 *CCP4) CheckHklout() error {
	hklout := ccp4.files["hklout"]
	if len(hklout) == 0 {
		return errors.New(&driver.ConfigurationError{Msg: "hklout not defined"})
	}

	for _, path := range ccp4.files["hklin"] {
		if path == hklout[0] {
			return errors.New(&driver.ConfigurationError{Msg: "hklout and hklin are the same file (" + path + ")"})
		}
	}

	return nil
}

// Describe implements driver.Handle.
func (ccp4 *CCP4) Describe() string {
	description := "CCP4 program: " + ccp4.Executable()

	for _, keyword := range ccp4FileKeywords {
		if paths := ccp4.files[keyword]; len(paths) > 0 {
			description += " " + keyword + " " + strings.Join(paths, " ")
		}
	}

	return description
}

// Start adds the logical files to the command line, creates the CCP4 scratch directories and starts the program.
func (ccp4 *CCP4) Start(ctx context.Context) error {
	for _, env := range []string{"BINSORT_SCR", "CCP4_SCR"} {
		if dir := os.Getenv(env); dir != "" {
			_ = os.MkdirAll(dir, 0o755)
		}
	}

	for _, keyword := range ccp4FileKeywords {
		if paths := ccp4.files[keyword]; len(paths) > 0 {
			if err := ccp4.AddArgs(append([]string{keyword}, paths...)...); err != nil {
				return err
			}
		}
	}

	return ccp4.Decorated.Start(ctx)
}

// CCP4Status returns the termination status a CCP4 program prints on its `<program>: <status>` line near the
// end of its output.
func (ccp4 *CCP4) CCP4Status() (string, error) {
	lines, err := ccp4.AllOutput()
	if err != nil {
		return "", err
	}

	program := strings.ToLower(filepath.Base(ccp4.Executable()))
	program = strings.TrimSuffix(program, ".exe")

	if program == "fft" {
		program = "fftbig"
	}

	short, _, _ := strings.Cut(program, "-")

	if len(lines) > ccp4StatusWindow {
		lines = lines[len(lines)-ccp4StatusWindow:]
	}

	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		name := strings.ToLower(strings.TrimSuffix(fields[0], ":"))
		if name != program && name != short {
			continue
		}

		if _, status, ok := strings.Cut(line, ":"); ok {
			return strings.TrimSpace(strings.ReplaceAll(status, "*", "")), nil
		}
	}

	return "", errors.New(&logparse.ParseError{Schema: program, Marker: program + ":", Reason: "could not find status"})
}

// LogGraph returns the loggraph tables the program printed.
func (ccp4 *CCP4) LogGraph() ([]logparse.LogGraph, error) {
	lines, err := ccp4.AllOutput()
	if err != nil {
		return nil, err
	}

	return logparse.ParseLogGraph(lines)
}
