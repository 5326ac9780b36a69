package telemetry_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"

	"github.com/xia2/xia2-go/internal/errors"
	"github.com/xia2/xia2-go/internal/telemetry"
)

func TestNewTraceExporter(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		opts        telemetry.Options
		expectNil   bool
		expectError bool
	}{
		{name: "disabled", opts: telemetry.Options{}, expectNil: true},
		{name: "none", opts: telemetry.Options{TraceExporter: "none"}, expectNil: true},
		{name: "console", opts: telemetry.Options{TraceExporter: "console"}},
		{name: "http without endpoint", opts: telemetry.Options{TraceExporter: "http"}, expectError: true},
		{name: "unknown", opts: telemetry.Options{TraceExporter: "carrier-pigeon"}, expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			exporter, err := telemetry.NewTraceExporter(context.Background(), io.Discard, &tc.opts)
			if tc.expectError {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)

			if tc.expectNil {
				assert.Nil(t, exporter)
				return
			}

			assert.IsType(t, &stdouttrace.Exporter{}, exporter)
		})
	}
}

func TestCollectWritesSpans(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	var buf bytes.Buffer

	tlm, err := telemetry.NewTelemeter(ctx, "xia2", "test", &buf, &telemetry.Options{TraceExporter: "console"})
	require.NoError(t, err)

	failure := errors.New("integration failed")

	err = tlm.Collect(ctx, "stage_integrater", map[string]any{"sweep": "SWEEP1", "attempt": 1}, func(context.Context) error {
		return failure
	})
	require.ErrorIs(t, err, failure)

	require.NoError(t, tlm.Shutdown(ctx))
	assert.Contains(t, buf.String(), "stage_integrater")
	assert.Contains(t, buf.String(), "SWEEP1")
}

func TestTelemeterFromContextWithoutTelemeter(t *testing.T) {
	t.Parallel()

	called := false

	err := telemetry.TelemeterFromContext(context.Background()).Collect(context.Background(), "run", nil, func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestCleanMetricName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "stage_indexer_dials", telemetry.CleanMetricName("stage indexer dials"))
	assert.Equal(t, "run_xds_par", telemetry.CleanMetricName("run  xds_par!"))
}
