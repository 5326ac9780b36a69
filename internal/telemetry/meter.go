package telemetry

import (
	"context"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/xia2/xia2-go/internal/errors"
)

const metricExportInterval = time.Second

type Meter struct {
	metric.Meter
	provider *sdkmetric.MeterProvider
}

// NewMeter creates and configures the metrics collection. It returns nil when metrics are off.
func NewMeter(ctx context.Context, appName, appVersion string, writer io.Writer, opts *Options) (*Meter, error) {
	exporter, err := NewMetricExporter(ctx, writer, opts)
	if err != nil {
		return nil, err
	}

	if exporter == nil {
		return nil, nil
	}

	res, err := newResource(appName, appVersion)
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(metricExportInterval))),
	)

	otel.SetMeterProvider(provider)

	return &Meter{
		Meter:    provider.Meter(appName),
		provider: provider,
	}, nil
}

// NewMetricExporter creates a new metric exporter based on the telemetry options.
func NewMetricExporter(ctx context.Context, writer io.Writer, opts *Options) (sdkmetric.Exporter, error) {
	var (
		exporter sdkmetric.Exporter
		err      error
	)

	switch opts.MetricExporter {
	case "", ExporterNone:
		return nil, nil
	case ExporterOTLPHTTP:
		var config []otlpmetrichttp.Option
		if opts.MetricExporterInsecureEndpoint {
			config = append(config, otlpmetrichttp.WithInsecure())
		}

		exporter, err = otlpmetrichttp.New(ctx, config...)
	case ExporterOTLPGrpc:
		var config []otlpmetricgrpc.Option
		if opts.MetricExporterInsecureEndpoint {
			config = append(config, otlpmetricgrpc.WithInsecure())
		}

		exporter, err = otlpmetricgrpc.New(ctx, config...)
	case ExporterConsole:
		exporter, err = stdoutmetric.New(stdoutmetric.WithWriter(writer))
	default:
		return nil, errors.New(&ErrorUnknownExporter{Type: opts.MetricExporter})
	}

	if err != nil {
		return nil, errors.New(err)
	}

	return exporter, nil
}

// Time runs fn and records how long it took in the `<name>_duration` histogram, in milliseconds, and a
// `<name>_success_count` or `<name>_errors_count` counter.
func (meter *Meter) Time(ctx context.Context, name string, attrs map[string]any, fn func(childCtx context.Context) error) error {
	if meter == nil || meter.provider == nil {
		return fn(ctx)
	}

	name = CleanMetricName(name)
	options := metric.WithAttributes(mapToAttributes(attrs)...)
	started := time.Now()

	err := fn(ctx)

	if histogram, histErr := meter.Int64Histogram(name + "_duration"); histErr == nil {
		histogram.Record(ctx, time.Since(started).Milliseconds(), options)
	}

	if err != nil {
		meter.Count(ctx, name+"_errors", 1, attrs)
	} else {
		meter.Count(ctx, name+"_success", 1, attrs)
	}

	return err
}

// Count adds value to the `<name>_count` counter.
func (meter *Meter) Count(ctx context.Context, name string, value int64, attrs map[string]any) {
	if meter == nil || meter.provider == nil {
		return
	}

	counter, err := meter.Int64Counter(CleanMetricName(name) + "_count")
	if err != nil {
		return
	}

	counter.Add(ctx, value, metric.WithAttributes(mapToAttributes(attrs)...))
}
