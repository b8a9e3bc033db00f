package mail

import (
	"errors"
	"fmt"
	"time"
)

// ErrServiceUnavailable is returned when the circuit breaker is open and
// the transport is not being called.
var ErrServiceUnavailable = errors.New("mail transport unavailable")

// AuthError indicates that authentication failed against the IMAP or
// SMTP server. Auth failures never trip the circuit breaker; retrying
// with the same credentials cannot succeed.
type AuthError struct {
	Server  string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Server, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Envelope holds the parsed envelope data from an IMAP message.
type Envelope struct {
	MessageID string
	Subject   string
	From      string
	To        []string
	Date      time.Time
	Flags     []string // \Seen, \Flagged, \Answered, \Deleted
	UID       uint32
}

// ParsedMessage holds the full parsed content of an email message.
type ParsedMessage struct {
	Envelope    Envelope
	TextBody    string
	HTMLBody    string
	InReplyTo   string
	References  []string
	Attachments []Attachment
}

// Attachment holds metadata about a message attachment.
type Attachment struct {
	Filename string
	Size     int64
	MIMEType string
}

// SMTPConfig holds the SMTP server settings for sending mail.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	TLS      bool
}

// OutgoingMessage is a message to be delivered via the SMTP transport.
type OutgoingMessage struct {
	To         string
	Subject    string
	Body       string
	InReplyTo  string
	References []string
}
