package dispatch

import (
	"time"

	"github.com/nextlevelbuilder/upsrelay/pkg/protocol"
)

// TimestampLayout is how event times appear in notifications.
const TimestampLayout = "02/01/2006 15:04:05"

// SeverityTitle returns the headline of a notification.
func SeverityTitle(s protocol.Severity) string {
	switch s {
	case protocol.SeverityCritical:
		return "🚨 *Event:* Critical"
	case protocol.SeverityWarning:
		return "⚠️ *Event:* Warning"
	default:
		return "ℹ️ *Event:* Informational"
	}
}

// FormatMessage renders the notification text sent to groups.
func FormatMessage(s protocol.Severity, deviceID, location, message string, ts time.Time, loc *time.Location) string {
	if loc != nil {
		ts = ts.In(loc)
	}
	return SeverityTitle(s) + "\n" +
		"🔌 " + deviceID + " - " + location + "\n" +
		message + "\n" +
		ts.Format(TimestampLayout)
}
