//go:build otel

package cmd

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/upsrelay/internal/config"
	"github.com/nextlevelbuilder/upsrelay/internal/tracing"
	"github.com/nextlevelbuilder/upsrelay/internal/tracing/otelexport"
)

// initOTelExporter sends dispatch spans to the configured collector.
func initOTelExporter(ctx context.Context, cfg *config.Config) tracing.Shutdowner {
	tel := cfg.Telemetry
	if !tel.Enabled || tel.Endpoint == "" {
		slog.Debug("otel export not enabled", "hint", "set telemetry.enabled and telemetry.endpoint")
		return nil
	}

	exp, err := otelexport.New(ctx, otelexport.Config{
		Endpoint:    tel.Endpoint,
		Protocol:    tel.Protocol,
		Insecure:    tel.Insecure,
		ServiceName: tel.ServiceName,
		Version:     Version,
		StoreMode:   cfg.Database.Mode,
		Headers:     tel.Headers,
		SampleRatio: tel.SampleRatio,
	})
	if err != nil {
		slog.Warn("otel exporter disabled", "endpoint", tel.Endpoint, "error", err)
		return nil
	}
	slog.Info("otel export enabled", "endpoint", tel.Endpoint, "protocol", tel.Protocol, "sample_ratio", tel.SampleRatio)
	return exp
}
