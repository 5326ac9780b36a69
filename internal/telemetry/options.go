package telemetry

// Exporter types accepted for traces and metrics.
const (
	ExporterNone     = "none"
	ExporterConsole  = "console"
	ExporterOTLPHTTP = "otlpHttp"
	ExporterOTLPGrpc = "otlpGrpc"
	ExporterHTTP     = "http"
)

// Options selects where traces and metrics go. Empty exporters disable collection.
type Options struct {
	TraceExporter                 string
	TraceExporterHTTPEndpoint     string
	TraceExporterInsecureEndpoint bool
	// TraceParent continues a trace started by the caller, in W3C `traceparent` form.
	TraceParent                    string
	MetricExporter                 string
	MetricExporterInsecureEndpoint bool
}
