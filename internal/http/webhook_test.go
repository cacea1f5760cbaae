package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/upsrelay/internal/bus"
	"github.com/nextlevelbuilder/upsrelay/internal/state"
	"github.com/nextlevelbuilder/upsrelay/internal/store/storetest"
	"github.com/nextlevelbuilder/upsrelay/pkg/protocol"
)

const testSecret = "s3cret"

func newTestServer(t *testing.T, rpm int) (*Server, *bus.EventBus) {
	t.Helper()
	mem := storetest.New()
	cache := state.New(mem, mem, state.StatusRunning)
	if err := cache.Hydrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	events := bus.New()
	srv := NewServer(ServerConfig{Host: "127.0.0.1", Port: 0, WebhookSecret: testSecret, RateLimitRPM: rpm}, events, cache)
	t.Cleanup(srv.limiter.Stop)
	return srv, events
}

func post(t *testing.T, h http.Handler, auth, body string) (*httptest.ResponseRecorder, protocol.Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp protocol.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

const validBody = `{"upsName":"1223455","event":"onbattery","timestamp":"2026-05-01T10:00:00Z"}`

func TestWebhookAccepted(t *testing.T) {
	srv, events := newTestServer(t, 0)

	rec, resp := post(t, srv.Handler(), "Bearer "+testSecret, validBody)
	if rec.Code != http.StatusAccepted || !resp.OK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	ev, ok := events.ConsumeEvent(context.Background())
	if !ok {
		t.Fatal("no event queued")
	}
	if ev.DeviceID != "1223455" || ev.Severity != protocol.SeverityWarning || ev.Source != bus.SourceWebhook {
		t.Errorf("event = %+v", ev)
	}
}

func TestWebhookRejections(t *testing.T) {
	tests := []struct {
		name     string
		auth     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"no auth", "", validBody, http.StatusUnauthorized, protocol.ErrUnauthorized},
		{"not bearer", "Basic abc", validBody, http.StatusForbidden, protocol.ErrForbidden},
		{"wrong secret", "Bearer nope", validBody, http.StatusForbidden, protocol.ErrForbidden},
		{"bad json", "Bearer " + testSecret, `{`, http.StatusBadRequest, protocol.ErrInvalidRequest},
		{"missing name", "Bearer " + testSecret, `{"event":"onbattery","timestamp":"2026-05-01T10:00:00Z"}`, http.StatusBadRequest, protocol.ErrInvalidRequest},
		{"unknown event", "Bearer " + testSecret, `{"upsName":"1","event":"explode","timestamp":"2026-05-01T10:00:00Z"}`, http.StatusBadRequest, protocol.ErrUnknownEvent},
		{"missing timestamp", "Bearer " + testSecret, `{"upsName":"1","event":"onbattery"}`, http.StatusBadRequest, protocol.ErrInvalidRequest},
		{"bad timestamp", "Bearer " + testSecret, `{"upsName":"1","event":"onbattery","timestamp":"yesterday"}`, http.StatusBadRequest, protocol.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, events := newTestServer(t, 0)
			rec, resp := post(t, srv.Handler(), tt.auth, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if resp.OK || resp.Error == nil || resp.Error.Code != tt.wantErr {
				t.Errorf("error = %+v, want code %s", resp.Error, tt.wantErr)
			}
			if events.Pending() != 0 {
				t.Error("rejected request queued an event")
			}
		})
	}
}

func TestWebhookDuplicate(t *testing.T) {
	srv, events := newTestServer(t, 0)
	post(t, srv.Handler(), "Bearer "+testSecret, validBody)
	rec, resp := post(t, srv.Handler(), "Bearer "+testSecret, validBody)

	if rec.Code != http.StatusOK || !resp.OK {
		t.Fatalf("status = %d", rec.Code)
	}
	if events.Pending() != 1 {
		t.Errorf("pending = %d, want 1", events.Pending())
	}
}

func TestWebhookRateLimited(t *testing.T) {
	srv, _ := newTestServer(t, 1) // burst 10

	var last int
	for i := range 12 {
		body := strings.Replace(validBody, "10:00:00", "10:00:"+twoDigits(i), 1)
		rec, _ := post(t, srv.Handler(), "Bearer "+testSecret, body)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("last status = %d, want 429", last)
	}
}

func twoDigits(i int) string {
	return string([]byte{byte('0' + i/10), byte('0' + i%10)})
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		OK      bool                   `json:"ok"`
		Payload protocol.HealthPayload `json:"payload"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Payload.Status != "running" {
		t.Errorf("status = %q", resp.Payload.Status)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
}
