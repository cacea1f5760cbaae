package bus

import (
	"time"

	"github.com/nextlevelbuilder/upsrelay/pkg/protocol"
)

// Event sources.
const (
	SourceWebhook = "webhook"
	SourceMail    = "mail"
)

// Event is a normalized device event, independent of the transport it
// arrived on.
type Event struct {
	DeviceID  string
	Severity  protocol.Severity
	Message   string
	Timestamp time.Time
	Source    string
}

// DedupeKey identifies repeated deliveries of the same event.
func (e Event) DedupeKey() string {
	return e.DeviceID + "|" + string(e.Severity) + "|" + e.Message + "|" + e.Timestamp.UTC().Format(time.RFC3339Nano)
}
