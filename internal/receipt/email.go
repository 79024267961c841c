package receipt

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/go-faster/errors"
)

// Mailer sends an HTML email.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPConfig holds SMTP settings.
type SMTPConfig struct {
	Host      string `usage:"SMTP server host; empty disables email receipts"`
	Port      int    `default:"587" usage:"SMTP server port"`
	Username  string `usage:"SMTP username"`
	Password  string `usage:"SMTP password"`
	FromName  string `default:"Counter Checkout" usage:"Sender display name"`
	FromEmail string `default:"receipts@localhost" usage:"Sender address"`
}

// Enabled reports whether a server is configured.
func (c SMTPConfig) Enabled() bool { return c.Host != "" }

// SMTPMailer delivers mail over SMTP with opportunistic STARTTLS.
type SMTPMailer struct {
	cfg SMTPConfig
	now func() time.Time
}

// NewSMTPMailer returns a mailer for cfg.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, now: time.Now}
}

// Send delivers one message. The context bounds dialing and the whole SMTP
// exchange.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "dial %s", addr)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "smtp handshake")
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return errors.Wrap(err, "starttls")
		}
	}
	if m.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
			return errors.Wrap(err, "smtp auth")
		}
	}

	if err := c.Mail(m.cfg.FromEmail); err != nil {
		return errors.Wrap(err, "mail from")
	}
	if err := c.Rcpt(to); err != nil {
		return errors.Wrapf(err, "rcpt %s", to)
	}
	w, err := c.Data()
	if err != nil {
		return errors.Wrap(err, "data")
	}
	if _, err := w.Write(m.buildMessage(to, subject, htmlBody)); err != nil {
		return errors.Wrap(err, "write message")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "close message")
	}
	return c.Quit()
}

// buildMessage assembles the headers and HTML body.
func (m *SMTPMailer) buildMessage(to, subject, htmlBody string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s <%s>\r\n", mime.QEncoding.Encode("utf-8", m.cfg.FromName), m.cfg.FromEmail)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return b.Bytes()
}
