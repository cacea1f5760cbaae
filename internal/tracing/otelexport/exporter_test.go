package otelexport

import (
	"context"
	"strings"
	"testing"
)

func TestNew_EmptyEndpoint(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil {
		t.Error("expected error for empty endpoint")
	}
}

func TestExporter_Shutdown_NilExporter(t *testing.T) {
	var exp *Exporter
	if err := exp.Shutdown(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestConfig_ServiceName(t *testing.T) {
	if got := (Config{}).serviceName(); got != "upsrelay" {
		t.Errorf("default service name = %q", got)
	}
	if got := (Config{ServiceName: "relay-eu"}).serviceName(); got != "relay-eu" {
		t.Errorf("service name = %q", got)
	}
}

func TestConfig_Sampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{0, "AlwaysOnSampler"},
		{1, "AlwaysOnSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		got := Config{SampleRatio: tt.ratio}.sampler().Description()
		if !strings.Contains(got, tt.want) {
			t.Errorf("ratio %v: sampler = %q, want it to mention %q", tt.ratio, got, tt.want)
		}
	}
}
