package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/upsrelay/internal/bus"
	"github.com/nextlevelbuilder/upsrelay/pkg/protocol"
)

const (
	maxWebhookBody = 64 << 10
	publishTimeout = 5 * time.Second
)

// Publisher queues normalized events.
type Publisher interface {
	PublishEvent(ctx context.Context, ev bus.Event) error
}

// WebhookHandler handles POST /webhook from UPS hook scripts.
type WebhookHandler struct {
	secret  string
	events  Publisher
	limiter *RateLimiter
}

// NewWebhookHandler creates the webhook handler. limiter may be nil.
func NewWebhookHandler(secret string, events Publisher, limiter *RateLimiter) *WebhookHandler {
	return &WebhookHandler{secret: secret, events: events, limiter: limiter}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, present := extractBearerToken(r)
	if !present {
		writeError(w, http.StatusUnauthorized, protocol.ErrUnauthorized, "missing authorization header")
		return
	}
	if !tokenMatch(token, h.secret) {
		slog.Warn("security.webhook_bad_secret", "ip", clientIP(r))
		writeError(w, http.StatusForbidden, protocol.ErrForbidden, "invalid secret")
		return
	}

	if h.limiter != nil && !h.limiter.Allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, protocol.ErrResourceExhausted, "rate limit exceeded")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, protocol.ErrInvalidRequest, "cannot read body")
		return
	}
	if len(body) > maxWebhookBody {
		writeError(w, http.StatusRequestEntityTooLarge, protocol.ErrInvalidRequest, "body too large")
		return
	}

	payload, err := protocol.DecodeWebhook(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, protocol.ErrInvalidRequest, "invalid JSON body")
		return
	}

	ev, err := toEvent(payload)
	if err != nil {
		var we *webhookError
		if errors.As(err, &we) {
			writeError(w, http.StatusBadRequest, we.code, we.msg)
			return
		}
		writeError(w, http.StatusBadRequest, protocol.ErrInvalidRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), publishTimeout)
	defer cancel()
	switch err := h.events.PublishEvent(ctx, ev); {
	case errors.Is(err, bus.ErrDuplicateEvent):
		writeJSON(w, http.StatusOK, protocol.NewOKResponse(map[string]string{"status": "duplicate"}))
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, protocol.ErrUnavailable, "event queue full")
	default:
		slog.Info("webhook event accepted", "device_id", ev.DeviceID, "event", payload.Event, "ip", clientIP(r))
		writeJSON(w, http.StatusAccepted, protocol.NewOKResponse(map[string]string{"status": "queued"}))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, protocol.NewErrorResponse(code, msg))
}
