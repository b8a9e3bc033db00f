package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// Transport delivers a single outgoing message. Implementations are not
// expected to retry; failure isolation happens in the Sender and the
// retry queue above it.
type Transport interface {
	Send(ctx context.Context, msg *OutgoingMessage) error
}

// SMTPTransport sends mail over SMTP with implicit TLS or STARTTLS,
// depending on configuration.
type SMTPTransport struct {
	cfg SMTPConfig
}

// NewSMTPTransport creates an SMTP transport with the given settings.
func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	return &SMTPTransport{cfg: cfg}
}

// Send composes the RFC 2822 message and delivers it.
func (t *SMTPTransport) Send(_ context.Context, msg *OutgoingMessage) error {
	from := t.cfg.Username

	var body strings.Builder
	body.WriteString(fmt.Sprintf("From: %s\r\n", from))
	body.WriteString(fmt.Sprintf("To: %s\r\n", msg.To))
	body.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	body.WriteString(fmt.Sprintf(
		"Date: %s\r\n", time.Now().Format(time.RFC1123Z),
	))
	if msg.InReplyTo != "" {
		body.WriteString(fmt.Sprintf("In-Reply-To: <%s>\r\n", msg.InReplyTo))
	}
	if len(msg.References) > 0 {
		refs := make([]string, 0, len(msg.References))
		for _, r := range msg.References {
			refs = append(refs, "<"+r+">")
		}
		body.WriteString(fmt.Sprintf(
			"References: %s\r\n", strings.Join(refs, " "),
		))
	}
	body.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	body.WriteString("\r\n")
	body.WriteString(msg.Body)

	addr := t.cfg.Host + ":" + t.cfg.Port

	if t.cfg.TLS {
		return sendSMTPWithTLS(addr, t.cfg, from, msg.To, body.String())
	}

	return sendSMTPWithStartTLS(addr, t.cfg, from, msg.To, body.String())
}

// sendSMTPWithTLS sends an email over an implicit TLS connection.
func sendSMTPWithTLS(
	addr string, cfg SMTPConfig,
	from, to, body string,
) error {
	tlsConfig := &tls.Config{ServerName: cfg.Host}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("TLS dial to %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	if err := client.Auth(auth); err != nil {
		return &AuthError{
			Server:  "smtp",
			Message: fmt.Sprintf("SMTP auth failed: %v", err),
		}
	}

	return sendMailViaSMTPClient(client, from, to, body)
}

// sendSMTPWithStartTLS sends an email using STARTTLS.
func sendSMTPWithStartTLS(
	addr string, cfg SMTPConfig,
	from, to, body string,
) error {
	conn, err := net.DialTimeout("tcp", addr, 30*time.Second)
	if err != nil {
		return fmt.Errorf("dial to %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	tlsConfig := &tls.Config{ServerName: cfg.Host}
	if err := client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("SMTP STARTTLS: %w", err)
	}

	auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	if err := client.Auth(auth); err != nil {
		return &AuthError{
			Server:  "smtp",
			Message: fmt.Sprintf("SMTP auth failed: %v", err),
		}
	}

	return sendMailViaSMTPClient(client, from, to, body)
}

// sendMailViaSMTPClient sends a message using an already-authenticated
// SMTP client.
func sendMailViaSMTPClient(
	client *smtp.Client, from, to, body string,
) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}

	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("SMTP RCPT TO: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}

	if _, err := writer.Write([]byte(body)); err != nil {
		return fmt.Errorf("writing email body: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing email body: %w", err)
	}

	return client.Quit()
}
