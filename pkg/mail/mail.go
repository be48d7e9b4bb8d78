// Package mail delivers rendered reports over plain SMTP.
package mail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/stressoor/pkg/config"
)

// Content types accepted by Send.
const (
	ContentText = "text/plain"
	ContentHTML = "text/html"
)

// Mailer submits messages to a single relay.
type Mailer struct {
	log    logrus.FieldLogger
	cfg    config.MailConfig
	dialer net.Dialer
}

// New creates a mailer for the given relay settings.
func New(log logrus.FieldLogger, cfg config.MailConfig) *Mailer {
	if cfg.Port == 0 {
		cfg.Port = config.DefaultMailPort
	}

	if cfg.Subject == "" {
		cfg.Subject = config.DefaultSubject
	}

	return &Mailer{
		log: log.WithField("component", "mail"),
		cfg: cfg,
	}
}

// Receivers splits a semicolon separated address list, dropping blanks.
func Receivers(list string) []string {
	parts := strings.Split(list, ";")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}

// Message builds the RFC 822 message for body. The To header carries the
// receiver list as configured.
func Message(sender, receivers, contentType, subject, body string) []byte {
	var sb strings.Builder

	fmt.Fprintf(&sb, "From: %s\n", sender)
	fmt.Fprintf(&sb, "To: %s\n", receivers)
	sb.WriteString("MIME-Version: 1.0\n")
	fmt.Fprintf(&sb, "Content-type: %s\n", contentType)
	fmt.Fprintf(&sb, "Subject: %s\n\n", subject)
	sb.WriteString(body)

	return []byte(sb.String())
}

// Send submits body to every receiver in one unauthenticated session.
// An empty subject uses the configured one. There is no retry; any
// transport error is returned.
func (m *Mailer) Send(ctx context.Context, contentType, subject, body string) error {
	receivers := Receivers(m.cfg.Receivers)
	if len(receivers) == 0 {
		return errors.New("no mail receivers configured")
	}

	if subject == "" {
		subject = m.cfg.Subject
	}

	addr := net.JoinHostPort(m.cfg.Server, strconv.Itoa(m.cfg.Port))

	conn, err := m.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()

			return fmt.Errorf("setting deadline: %w", err)
		}
	}

	client, err := smtp.NewClient(conn, m.cfg.Server)
	if err != nil {
		_ = conn.Close()

		return fmt.Errorf("starting smtp session: %w", err)
	}
	defer func() { _ = client.Close() }()

	if err := client.Mail(m.cfg.Sender); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}

	for _, rcpt := range receivers {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}

	msg := Message(m.cfg.Sender, m.cfg.Receivers, contentType, subject, body)
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()

		return fmt.Errorf("writing message: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("finishing message: %w", err)
	}

	if err := client.Quit(); err != nil {
		return fmt.Errorf("smtp QUIT: %w", err)
	}

	m.log.WithFields(logrus.Fields{
		"server":    addr,
		"receivers": len(receivers),
		"bytes":     len(msg),
	}).Info("Mailed report")

	return nil
}
