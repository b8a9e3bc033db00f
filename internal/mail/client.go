package mail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	gomail "github.com/emersion/go-message/mail"
)

// IMAPClient wraps go-imap v2 for connecting to and querying IMAP servers.
// Each operation dials its own connection, so a dropped connection on one
// poll cycle does not poison the next.
type IMAPClient struct {
	host     string
	port     string
	username string
	password string
	tls      bool
}

// NewIMAPClient creates a new IMAP client configuration.
func NewIMAPClient(
	host, port, username, password string, tls bool,
) *IMAPClient {
	return &IMAPClient{
		host:     host,
		port:     port,
		username: username,
		password: password,
		tls:      tls,
	}
}

// Connect establishes a connection to the IMAP server, authenticates,
// and returns the connected client. The caller is responsible for
// calling Logout/Close on the returned client.
func (c *IMAPClient) Connect(
	_ context.Context,
) (*imapclient.Client, error) {
	addr := c.host + ":" + c.port

	var client *imapclient.Client
	var err error

	if c.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &AuthError{
			Server: "imap",
			Message: fmt.Sprintf(
				"authentication failed for %s: %v",
				c.username, err,
			),
		}
	}

	return client, nil
}

// FetchUnseenSince connects to IMAP, selects INBOX, searches for unseen
// messages received on or after the cutoff, and returns their envelope
// data in mailbox order.
func (c *IMAPClient) FetchUnseenSince(
	ctx context.Context, since time.Time,
) ([]Envelope, error) {
	client, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting INBOX: %w", err)
	}

	criteria := &imap.SearchCriteria{
		Since:   since,
		NotFlag: []imap.Flag{imap.FlagSeen},
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	uidSet := imap.UIDSetNum(uids...)

	fetchOpts := &imap.FetchOptions{
		Envelope: true,
		Flags:    true,
		UID:      true,
	}

	fetchCmd := client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	var envelopes []Envelope
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		envelopes = append(envelopes, envelopeFromBuffer(buf))
	}

	if err := fetchCmd.Close(); err != nil {
		return envelopes, fmt.Errorf("fetching envelopes: %w", err)
	}

	return envelopes, nil
}

// FetchMessage connects to IMAP, selects INBOX, and fetches the full
// message body for the given UID, parsing it into a ParsedMessage. The
// body is fetched with Peek so the unseen flag is left untouched until
// the caller explicitly marks the message read. A message that yields
// neither envelope nor body returns (nil, nil); callers mark such a
// message read and skip it rather than refetching it forever.
func (c *IMAPClient) FetchMessage(
	ctx context.Context, uid uint32,
) (*ParsedMessage, error) {
	client, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting INBOX: %w", err)
	}

	uidSet := imap.UIDSetNum(imap.UID(uid))

	bodySection := &imap.FetchItemBodySection{
		Peek: true,
	}

	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message UID %d not found", uid)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message data: %w", err)
	}

	rawBody := buf.FindBodySection(bodySection)
	if buf.Envelope == nil && len(rawBody) == 0 {
		// Nothing usable came back for this UID.
		return nil, nil
	}

	parsed := &ParsedMessage{
		Envelope: envelopeFromBuffer(buf),
	}
	if rawBody != nil {
		parseMIMEBody(rawBody, parsed)
	}

	if err := fetchCmd.Close(); err != nil {
		return parsed, fmt.Errorf("closing fetch: %w", err)
	}

	return parsed, nil
}

// MarkSeen connects to IMAP and adds the \Seen flag to a message so it is
// excluded from later unseen searches.
func (c *IMAPClient) MarkSeen(ctx context.Context, uid uint32) error {
	return c.setFlags(ctx, uid, []imap.Flag{imap.FlagSeen}, true)
}

// setFlags connects to IMAP and modifies flags on a message.
// If add is true, the flags are added; otherwise they are removed.
func (c *IMAPClient) setFlags(
	ctx context.Context,
	uid uint32,
	flags []imap.Flag,
	add bool,
) error {
	client, err := c.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return fmt.Errorf("selecting INBOX: %w", err)
	}

	uidSet := imap.UIDSetNum(imap.UID(uid))

	op := imap.StoreFlagsAdd
	if !add {
		op = imap.StoreFlagsDel
	}

	storeCmd := client.Store(uidSet, &imap.StoreFlags{
		Op:     op,
		Silent: true,
		Flags:  flags,
	}, nil)

	return storeCmd.Close()
}

// envelopeFromBuffer extracts an Envelope from a FetchMessageBuffer.
func envelopeFromBuffer(buf *imapclient.FetchMessageBuffer) Envelope {
	env := Envelope{
		UID: uint32(buf.UID),
	}

	if buf.Envelope != nil {
		env.MessageID = buf.Envelope.MessageID
		env.Subject = buf.Envelope.Subject
		env.Date = buf.Envelope.Date

		if len(buf.Envelope.From) > 0 {
			env.From = buf.Envelope.From[0].Addr()
		}

		for _, to := range buf.Envelope.To {
			env.To = append(env.To, to.Addr())
		}
	}

	for _, flag := range buf.Flags {
		env.Flags = append(env.Flags, string(flag))
	}

	return env
}

// parseMIMEBody parses a raw RFC 2822 message body using go-message and
// fills in the text/plain body, text/html body, threading headers, and
// attachment metadata on parsed.
func parseMIMEBody(raw []byte, parsed *ParsedMessage) {
	reader := bytes.NewReader(raw)

	mr, err := gomail.CreateReader(reader)
	if err != nil {
		// If parsing fails, try treating the whole thing as plain text
		parsed.TextBody = string(raw)
		return
	}
	defer mr.Close()

	if ids, err := mr.Header.MsgIDList("In-Reply-To"); err == nil && len(ids) > 0 {
		parsed.InReplyTo = ids[0]
	}
	if refs, err := mr.Header.MsgIDList("References"); err == nil {
		parsed.References = refs
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *gomail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				parsed.TextBody = string(body)
			case strings.HasPrefix(contentType, "text/html"):
				parsed.HTMLBody = string(body)
			}

		case *gomail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()

			// Read to get size without storing content
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			parsed.Attachments = append(parsed.Attachments, Attachment{
				Filename: filename,
				Size:     int64(len(body)),
				MIMEType: contentType,
			})
		}
	}
}
