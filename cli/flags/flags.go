// Package flags holds helpers shared by the global and the command flags.
package flags

import (
	"strings"
)

// EnvVarPrefix is prepended to the environment variable of every flag.
const EnvVarPrefix = "XIA2_"

// EnvVars returns the environment variable names of the flag name, such as `XIA2_MAX_RETRIES` for `max-retries`.
func EnvVars(name string) []string {
	return []string{EnvVarPrefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))}
}
