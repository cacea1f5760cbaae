package protocol

import (
	"testing"
	"time"
)

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in      string
		want    Severity
		wantErr bool
	}{
		{"Informational", SeverityInfo, false},
		{"info", SeverityInfo, false},
		{" WARNING ", SeverityWarning, false},
		{"warn", SeverityWarning, false},
		{"Critical", SeverityCritical, false},
		{"debug", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseSeverity(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSeverity(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSeverity(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLookupEvent(t *testing.T) {
	spec, ok := LookupEvent(" OnBattery ")
	if !ok {
		t.Fatal("onbattery not found")
	}
	if spec.Severity != SeverityWarning {
		t.Errorf("severity = %q, want warning", spec.Severity)
	}
	if _, ok := LookupEvent("reboot"); ok {
		t.Error("unknown event resolved")
	}
	for name, spec := range upsEvents {
		if !spec.Severity.Valid() || spec.Message == "" {
			t.Errorf("event %q has incomplete spec %+v", name, spec)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	for _, in := range []string{
		"2024-03-01T12:30:00Z",
		"2024-03-01T12:30:00.000Z",
		"2024-03-01 12:30:00 +0000",
		"2024-03-01 12:30:00",
	} {
		got, err := ParseTimestamp(in)
		if err != nil {
			t.Errorf("ParseTimestamp(%q): %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Error("expected error for free text")
	}
}

func TestDecodeWebhook(t *testing.T) {
	p, err := DecodeWebhook([]byte(`{"upsName":"1223455","event":"onbattery","timestamp":"2024-03-01T12:30:00Z"}`))
	if err != nil {
		t.Fatal(err)
	}
	if p.UPSName != "1223455" || p.Event != "onbattery" {
		t.Errorf("payload = %+v", p)
	}
	if _, err := DecodeWebhook([]byte(`{"upsName":`)); err == nil {
		t.Error("expected error for truncated body")
	}
}
