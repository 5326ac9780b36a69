package stage

import (
	"context"
	"os"
	"regexp"

	"github.com/hashicorp/go-version"

	"github.com/xia2/xia2-go/internal/driver"
	"github.com/xia2/xia2-go/internal/errors"
)

// VersionCheck runs a program and reads its version from the output.
type VersionCheck struct {
	Executable string
	Args       []string
	// Pattern's first submatch is the version.
	Pattern *regexp.Regexp
	// Min is the lowest acceptable version, in a form go-version understands.
	Min string
}

// Requirement lists what must be present for a candidate to run.
type Requirement struct {
	Executables []string
	// EnvVars must be set, such as a licence location or a suite setup variable.
	EnvVars []string
	Version *VersionCheck
}

// Check returns a driver.NotAvailableError for the first requirement that is not met.
func (req Requirement) Check(ctx context.Context, env Env) error {
	lookPath := env.LookPath
	if lookPath == nil {
		lookPath = driver.LookPath
	}

	getenv := env.Getenv
	if getenv == nil {
		getenv = os.LookupEnv
	}

	for _, name := range req.EnvVars {
		if value, ok := getenv(name); !ok || value == "" {
			return errors.New(&driver.NotAvailableError{Executable: name, Reason: "environment variable not set"})
		}
	}

	for _, executable := range req.Executables {
		if _, err := lookPath(executable); err != nil {
			var notAvailable *driver.NotAvailableError
			if errors.As(err, &notAvailable) {
				return err
			}

			return errors.New(&driver.NotAvailableError{Executable: executable, Err: err})
		}
	}

	if req.Version != nil {
		return req.Version.check(ctx, env)
	}

	return nil
}

func (check *VersionCheck) check(ctx context.Context, env Env) error {
	minimum, err := version.NewVersion(check.Min)
	if err != nil {
		return errors.Errorf("invalid minimum version %q for %s: %w", check.Min, check.Executable, err)
	}

	if env.Drivers == nil {
		return errors.Errorf("no driver factory to check %s", check.Executable)
	}

	handle := env.Drivers.New()
	if err := handle.Configure(check.Executable, check.Args...); err != nil {
		return err
	}

	if err := handle.Start(ctx); err != nil {
		return err
	}

	if err := handle.CloseAndWait(); err != nil {
		return err
	}

	lines, err := handle.AllOutput()
	if err != nil {
		return err
	}

	for _, line := range lines {
		match := check.Pattern.FindStringSubmatch(line)
		if len(match) < 2 {
			continue
		}

		found, err := version.NewVersion(match[1])
		if err != nil {
			continue
		}

		if found.LessThan(minimum) {
			return errors.New(&driver.NotAvailableError{
				Executable: check.Executable,
				Reason:     "version " + found.String() + " is older than " + minimum.String(),
			})
		}

		return nil
	}

	return errors.New(&driver.NotAvailableError{Executable: check.Executable, Reason: "cannot determine version"})
}

// Require returns the attempt for a requirement check: Available with impl when met, Unavailable when a
// NotAvailableError explains why not, Failed otherwise.
func Require(ctx context.Context, env Env, req Requirement, impl Implementation) Attempt {
	err := req.Check(ctx, env)
	if err == nil {
		return AvailableAttempt(impl)
	}

	var notAvailable *driver.NotAvailableError
	if errors.As(err, &notAvailable) {
		return UnavailableAttempt(err)
	}

	return FailedAttempt(err)
}
