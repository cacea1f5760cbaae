package protocol

import (
	"fmt"
	"strings"
)

// Severity is the normalized level of a device event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ParseSeverity maps the vocabularies used by event sources onto a Severity.
// Mail bodies say "Informational", "Warning" or "Critical"; the webhook
// uses the normalized names directly.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info", "informational":
		return SeverityInfo, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "critical":
		return SeverityCritical, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// Valid reports whether s is one of the three known levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// UPS daemon event names as posted by the apcupsd hook scripts.
const (
	EventAnnoyMe       = "annoyme"
	EventBattAttach    = "battattach"
	EventBattDetach    = "battdetach"
	EventChangeMe      = "changeme"
	EventCommFailure   = "commfailure"
	EventCommOK        = "commok"
	EventDoShutdown    = "doshutdown"
	EventEmergency     = "emergency"
	EventFailing       = "failing"
	EventKillPower     = "killpower"
	EventLoadLimit     = "loadlimit"
	EventMainsBack     = "mainsback"
	EventOnBattery     = "onbattery"
	EventOffBattery    = "offbattery"
	EventPowerOut      = "powerout"
	EventRemoteDown    = "remotedown"
	EventRunLimit      = "runlimit"
	EventTimeout       = "timeout"
	EventStartSelfTest = "startselftest"
	EventEndSelfTest   = "endselftest"
)

// EventSpec is the static severity and text for a daemon event.
type EventSpec struct {
	Severity Severity
	Message  string
}

var upsEvents = map[string]EventSpec{
	EventAnnoyMe:       {SeverityWarning, "Power problems persist, users are asked to log off"},
	EventBattAttach:    {SeverityInfo, "Battery attached"},
	EventBattDetach:    {SeverityWarning, "Battery disconnected"},
	EventChangeMe:      {SeverityWarning, "Battery needs to be replaced"},
	EventCommFailure:   {SeverityCritical, "Communication with the UPS lost"},
	EventCommOK:        {SeverityInfo, "Communication with the UPS restored"},
	EventDoShutdown:    {SeverityCritical, "System shutdown initiated"},
	EventEmergency:     {SeverityCritical, "Emergency shutdown initiated"},
	EventFailing:       {SeverityCritical, "Battery power exhausted"},
	EventKillPower:     {SeverityCritical, "UPS power is being cut"},
	EventLoadLimit:     {SeverityCritical, "Battery charge below limit"},
	EventMainsBack:     {SeverityInfo, "Mains power restored"},
	EventOnBattery:     {SeverityWarning, "Running on battery power"},
	EventOffBattery:    {SeverityInfo, "Back on mains power"},
	EventPowerOut:      {SeverityWarning, "Mains power lost"},
	EventRemoteDown:    {SeverityCritical, "Remote shutdown requested"},
	EventRunLimit:      {SeverityCritical, "Remaining runtime below limit"},
	EventTimeout:       {SeverityCritical, "Battery runtime timeout reached"},
	EventStartSelfTest: {SeverityInfo, "Self test started"},
	EventEndSelfTest:   {SeverityInfo, "Self test finished"},
}

// LookupEvent returns the static severity and text for a daemon event name.
func LookupEvent(name string) (EventSpec, bool) {
	spec, ok := upsEvents[strings.ToLower(strings.TrimSpace(name))]
	return spec, ok
}
