// Package protocol defines the wire format shared by the upsrelay event
// sources: the webhook body posted by UPS hook scripts and the JSON
// responses the relay sends back.
package protocol

import (
	"encoding/json"
	"time"
)

// WebhookPayload is the body posted to /webhook.
type WebhookPayload struct {
	UPSName   string `json:"upsName"`
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
}

// ErrorShape describes a webhook error.
type ErrorShape struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Retryable    bool   `json:"retryable,omitempty"`
	RetryAfterMs int    `json:"retryAfterMs,omitempty"`
}

// Response is the JSON envelope returned by every HTTP endpoint.
type Response struct {
	OK      bool        `json:"ok"`
	Payload interface{} `json:"payload,omitempty"`
	Error   *ErrorShape `json:"error,omitempty"`
}

// HealthPayload is returned by GET /health.
type HealthPayload struct {
	Status  string `json:"status"`
	Devices int    `json:"devices"`
	Groups  int    `json:"groups"`
	Uptime  string `json:"uptime"`
}

// NewOKResponse creates a success response.
func NewOKResponse(payload interface{}) *Response {
	return &Response{OK: true, Payload: payload}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(code, message string) *Response {
	return &Response{
		OK: false,
		Error: &ErrorShape{
			Code:    code,
			Message: message,
		},
	}
}

// ParseTimestamp accepts the timestamp formats UPS hook scripts send:
// RFC 3339 (with or without fractional seconds) and the apcupsd
// "2006-01-02 15:04:05 -0700" form.
func ParseTimestamp(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05 -0700",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// DecodeWebhook parses a webhook body.
func DecodeWebhook(data []byte) (WebhookPayload, error) {
	var p WebhookPayload
	err := json.Unmarshal(data, &p)
	return p, err
}
