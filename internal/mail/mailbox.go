package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// rawMessage is one unseen mail as fetched from the server.
type rawMessage struct {
	UID  uint32
	Body []byte
}

// mailbox is the IMAP session used by one poll.
type mailbox interface {
	FetchUnseen(ctx context.Context) ([]rawMessage, error)
	MarkSeen(uids []uint32) error
	Close() error
}

// dialFunc opens a mailbox session.
type dialFunc func(ctx context.Context, cfg Config) (mailbox, error)

type imapMailbox struct {
	c *client.Client
}

func dialIMAP(ctx context.Context, cfg Config) (mailbox, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	var (
		c   *client.Client
		err error
	)
	if cfg.TLS {
		c, err = client.DialTLS(addr, &tls.Config{ServerName: cfg.Host})
	} else {
		c, err = client.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		c.Timeout = deadline.Sub(nowFunc())
	}

	if err := c.Login(cfg.User, cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	if _, err := c.Select(cfg.Mailbox, false); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap select %s: %w", cfg.Mailbox, err)
	}
	return &imapMailbox{c: c}, nil
}

func (m *imapMailbox) FetchUnseen(ctx context.Context) ([]rawMessage, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := m.c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	// BODY.PEEK so fetching alone does not mark mails read
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	ch := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- m.c.UidFetch(seqset, items, ch)
	}()

	var out []rawMessage
	for msg := range ch {
		lit := msg.GetBody(section)
		if lit == nil {
			continue
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(lit); err != nil {
			continue
		}
		out = append(out, rawMessage{UID: msg.Uid, Body: buf.Bytes()})
	}
	if err := <-done; err != nil {
		return out, fmt.Errorf("imap fetch: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

func (m *imapMailbox) MarkSeen(uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}
	if err := m.c.UidStore(seqset, item, flags, nil); err != nil {
		return fmt.Errorf("imap mark seen: %w", err)
	}
	return nil
}

func (m *imapMailbox) Close() error {
	return m.c.Logout()
}
