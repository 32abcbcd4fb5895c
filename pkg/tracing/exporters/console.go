package exporters

import (
	"context"

	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"
)

// NewConsoleExporter creates an exporter that writes spans to stdout, for
// local development when no collector is running
func NewConsoleExporter(pretty bool) (trace.SpanExporter, error) {
	opts := []stdouttrace.Option{}
	if pretty {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	return stdouttrace.New(opts...)
}

// NoopExporter discards all spans. Used when tracing export is disabled but
// span creation should still work.
type NoopExporter struct{}

func (c *NoopExporter) ExportSpans(ctx context.Context, spans []trace.ReadOnlySpan) error {
	return nil
}

func (c *NoopExporter) Shutdown(ctx context.Context) error {
	return nil
}
