package mail

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/upsrelay/pkg/protocol"
)

// Report is the content of one UPS notification mail.
type Report struct {
	Severity   protocol.Severity
	Message    string
	DeviceName string
	DeviceID   string
	OccurredAt time.Time
}

var errMalformed = errors.New("malformed UPS report")

// occurredLayouts are the date forms seen in the "Occurred:" line, after
// commas are removed.
var occurredLayouts = []string{
	"Mon 02 Jan 2006 15:04:05 MST",
	"Mon 02 Jan 2006 15:04:05 -0700",
	"Mon 2 Jan 2006 15:04:05",
	"Mon Jan 2 2006 15:04:05",
	"01/02/2006 15:04:05",
	"02/01/2006 15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParseReport parses the plain-text body of a UPS notification mail:
//
//	<any first line>
//	Informational: Communication restored
//	Server UPS - 1223455
//	Occurred: Mon, 02 Jan 2006 15:04:05
//
// Dates without a zone are read in loc.
func ParseReport(body string, loc *time.Location) (Report, error) {
	if loc == nil {
		loc = time.Local
	}
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	if len(lines) < 4 {
		return Report{}, fmt.Errorf("%w: %d lines", errMalformed, len(lines))
	}

	kind, message, ok := strings.Cut(lines[1], ":")
	if !ok {
		return Report{}, fmt.Errorf("%w: no type on line 2", errMalformed)
	}
	sev, err := protocol.ParseSeverity(kind)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %w", errMalformed, err)
	}

	name, id, ok := strings.Cut(lines[2], "-")
	if !ok {
		return Report{}, fmt.Errorf("%w: no device id on line 3", errMalformed)
	}
	id = strings.Join(strings.Fields(id), "")
	if id == "" {
		return Report{}, fmt.Errorf("%w: empty device id", errMalformed)
	}

	_, dateStr, ok := strings.Cut(lines[3], "Occurred:")
	if !ok {
		return Report{}, fmt.Errorf("%w: no occurrence date on line 4", errMalformed)
	}
	occurred, err := parseOccurred(dateStr, loc)
	if err != nil {
		return Report{}, err
	}

	return Report{
		Severity:   sev,
		Message:    strings.TrimSpace(message),
		DeviceName: strings.TrimSpace(name),
		DeviceID:   id,
		OccurredAt: occurred,
	}, nil
}

func parseOccurred(s string, loc *time.Location) (time.Time, error) {
	s = strings.Join(strings.Fields(strings.ReplaceAll(s, ",", "")), " ")
	for _, layout := range occurredLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable date %q", errMalformed, s)
}
