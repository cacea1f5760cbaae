package http

import (
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/upsrelay/internal/bus"
	"github.com/nextlevelbuilder/upsrelay/internal/store"
	"github.com/nextlevelbuilder/upsrelay/pkg/protocol"
)

// webhookError carries the protocol error code for a rejected payload.
type webhookError struct {
	code string
	msg  string
}

func (e *webhookError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &webhookError{code: protocol.ErrInvalidRequest, msg: fmt.Sprintf(format, args...)}
}

// toEvent validates a webhook payload and normalizes it.
func toEvent(p protocol.WebhookPayload) (bus.Event, error) {
	deviceID := strings.TrimSpace(p.UPSName)
	if deviceID == "" {
		return bus.Event{}, badRequest("upsName is required")
	}
	if len(deviceID) > store.MaxDeviceIDLength {
		return bus.Event{}, badRequest("upsName too long: %d chars (max %d)", len(deviceID), store.MaxDeviceIDLength)
	}

	name := strings.ToLower(strings.TrimSpace(p.Event))
	if name == "" {
		return bus.Event{}, badRequest("event is required")
	}
	spec, ok := protocol.LookupEvent(name)
	if !ok {
		return bus.Event{}, &webhookError{code: protocol.ErrUnknownEvent, msg: fmt.Sprintf("unknown event %q", p.Event)}
	}

	if strings.TrimSpace(p.Timestamp) == "" {
		return bus.Event{}, badRequest("timestamp is required")
	}
	ts, err := protocol.ParseTimestamp(strings.TrimSpace(p.Timestamp))
	if err != nil {
		return bus.Event{}, badRequest("invalid timestamp %q", p.Timestamp)
	}

	return bus.Event{
		DeviceID:  deviceID,
		Severity:  spec.Severity,
		Message:   spec.Message,
		Timestamp: ts,
		Source:    bus.SourceWebhook,
	}, nil
}
