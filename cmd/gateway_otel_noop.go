//go:build !otel

package cmd

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/upsrelay/internal/config"
	"github.com/nextlevelbuilder/upsrelay/internal/tracing"
)

// initOTelExporter leaves the global noop tracer in place; dispatch spans
// are dropped. Build with -tags otel to export them.
func initOTelExporter(_ context.Context, cfg *config.Config) tracing.Shutdowner {
	if cfg.Telemetry.Enabled {
		slog.Warn("telemetry.enabled is set but this binary was built without the otel tag")
	}
	return nil
}
