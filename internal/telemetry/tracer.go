package telemetry

import (
	"context"
	"io"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/xia2/xia2-go/internal/errors"
)

const traceParentParts = 4

type Tracer struct {
	trace.Tracer
	provider      *sdktrace.TracerProvider
	parentContext *trace.SpanContext
}

// NewTracer creates and configures the traces collection. It returns nil when tracing is off.
func NewTracer(ctx context.Context, appName, appVersion string, writer io.Writer, opts *Options) (*Tracer, error) {
	spanExporter, err := NewTraceExporter(ctx, writer, opts)
	if err != nil {
		return nil, err
	}

	if spanExporter == nil {
		return nil, nil
	}

	res, err := newResource(appName, appVersion)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(provider)

	tracer := &Tracer{
		Tracer:   provider.Tracer(appName),
		provider: provider,
	}

	if opts.TraceParent != "" {
		parent, err := parseTraceParent(opts.TraceParent)
		if err != nil {
			return nil, err
		}

		tracer.parentContext = &parent
	}

	return tracer, nil
}

func newResource(appName, appVersion string) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(appName),
			semconv.ServiceVersion(appVersion),
		),
	)
	if err != nil {
		return nil, errors.New(err)
	}

	return res, nil
}

// parseTraceParent reads `00-<trace id>-<span id>-<flags>`.
func parseTraceParent(value string) (trace.SpanContext, error) {
	parts := strings.Split(value, "-")
	if len(parts) != traceParentParts {
		return trace.SpanContext{}, errors.Errorf("invalid TRACEPARENT value %s", value)
	}

	flag, err := strconv.Atoi(parts[3])
	if err != nil {
		return trace.SpanContext{}, errors.Errorf("invalid trace flags: %w", err)
	}

	traceID, err := trace.TraceIDFromHex(parts[1])
	if err != nil {
		return trace.SpanContext{}, errors.New(err)
	}

	spanID, err := trace.SpanIDFromHex(parts[2])
	if err != nil {
		return trace.SpanContext{}, errors.New(err)
	}

	flags := trace.FlagsSampled
	if flag == 0 {
		flags = 0
	}

	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	}), nil
}

// NewTraceExporter creates a new exporter based on the telemetry options.
func NewTraceExporter(ctx context.Context, writer io.Writer, opts *Options) (sdktrace.SpanExporter, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)

	switch opts.TraceExporter {
	case "", ExporterNone:
		return nil, nil
	case ExporterHTTP:
		if opts.TraceExporterHTTPEndpoint == "" {
			return nil, errors.New(&ErrorMissingEnvVariable{Vars: []string{"XIA2_TELEMETRY_TRACE_EXPORTER_HTTP_ENDPOINT"}})
		}

		config := []otlptracehttp.Option{otlptracehttp.WithEndpoint(opts.TraceExporterHTTPEndpoint)}
		if opts.TraceExporterInsecureEndpoint {
			config = append(config, otlptracehttp.WithInsecure())
		}

		exporter, err = otlptracehttp.New(ctx, config...)
	case ExporterOTLPHTTP:
		var config []otlptracehttp.Option
		if opts.TraceExporterInsecureEndpoint {
			config = append(config, otlptracehttp.WithInsecure())
		}

		exporter, err = otlptracehttp.New(ctx, config...)
	case ExporterOTLPGrpc:
		var config []otlptracegrpc.Option
		if opts.TraceExporterInsecureEndpoint {
			config = append(config, otlptracegrpc.WithInsecure())
		}

		exporter, err = otlptracegrpc.New(ctx, config...)
	case ExporterConsole:
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(writer))
	default:
		return nil, errors.New(&ErrorUnknownExporter{Type: opts.TraceExporter})
	}

	if err != nil {
		return nil, errors.New(err)
	}

	return exporter, nil
}

// Trace runs fn inside a span named name. An error from fn is recorded on the span.
func (tracer *Tracer) Trace(ctx context.Context, name string, attrs map[string]any, fn func(childCtx context.Context) error) error {
	if tracer == nil || tracer.provider == nil {
		return fn(ctx)
	}

	if tracer.parentContext != nil && !trace.SpanContextFromContext(ctx).IsValid() {
		ctx = trace.ContextWithSpanContext(ctx, *tracer.parentContext)
	}

	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(mapToAttributes(attrs)...))
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return err
	}

	return nil
}
