package mail

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"
)

// parsedMail is the part of a fetched message the poller looks at.
type parsedMail struct {
	From string // bare address, lower case
	Text string // first text/plain part
}

// readMessage extracts the sender address and plain-text body from a raw
// RFC 5322 message.
func readMessage(r io.Reader) (parsedMail, error) {
	mr, err := gomail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return parsedMail{}, fmt.Errorf("read mail: %w", err)
	}
	defer mr.Close()

	var out parsedMail
	if addrs, err := mr.Header.AddressList("From"); err == nil && len(addrs) > 0 {
		out.From = strings.ToLower(addrs[0].Address)
	}

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return out, fmt.Errorf("read mail part: %w", err)
		}
		h, ok := p.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		if ct != "" && ct != "text/plain" {
			continue
		}
		body, err := io.ReadAll(p.Body)
		if err != nil {
			return out, fmt.Errorf("read mail body: %w", err)
		}
		out.Text = string(body)
		return out, nil
	}
	return out, nil
}
