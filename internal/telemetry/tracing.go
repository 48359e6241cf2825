package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "listing-harvester"

// Tracer returns the tracer used for per-item pipeline spans. Without an
// exporter configured it is the global no-op tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
