package flags_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xia2/xia2-go/cli/flags"
)

func TestEnvVars(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		expected string
	}{
		{name: "njob", expected: "XIA2_NJOB"},
		{name: "max-retries", expected: "XIA2_MAX_RETRIES"},
		{name: "telemetry-trace-exporter-http-endpoint", expected: "XIA2_TELEMETRY_TRACE_EXPORTER_HTTP_ENDPOINT"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, []string{tc.expected}, flags.EnvVars(tc.name))
		})
	}
}
