// Package tracing exposes the tracer used by the relay. Spans go to the
// global OpenTelemetry provider, which is a no-op unless the binary was
// built with the otel tag and telemetry is enabled in config.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationPrefix = "github.com/nextlevelbuilder/upsrelay/"

// Tracer returns a named tracer from the global provider.
func Tracer(component string) trace.Tracer {
	return otel.Tracer(instrumentationPrefix + component)
}

// Shutdowner is implemented by exporters that must flush on exit.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}
