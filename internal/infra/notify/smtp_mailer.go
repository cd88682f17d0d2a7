package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// MailerConfig holds SMTP settings. An empty Host puts the mailer in log-only mode.
type MailerConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AppName  string
	AppURL   string
}

// SMTPMailer sends plain-text email. Every message gets an app-name footer.
type SMTPMailer struct {
	cfg    MailerConfig
	logger *logrus.Entry
}

func NewSMTPMailer(cfg MailerConfig, logger *logrus.Entry) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, logger: logger}
}

func (m *SMTPMailer) Configured() bool {
	return m.cfg.Host != ""
}

// SendEmail delivers a plain-text message. An empty recipient is skipped.
func (m *SMTPMailer) SendEmail(ctx context.Context, to, subject, body string) error {
	if strings.TrimSpace(to) == "" {
		m.logger.Info("No recipient address specified, skipping email")
		return nil
	}
	text := appendFooter(body, m.cfg.AppName, m.cfg.AppURL)

	if !m.Configured() {
		m.logger.WithFields(logrus.Fields{"to": to, "subject": subject, "body": text}).
			Info("SMTP not configured, email logged only")
		return nil
	}
	return m.deliver(ctx, to, buildMessage(m.cfg.From, to, subject, text))
}

func (m *SMTPMailer) deliver(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(time.Minute))
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if m.cfg.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp finish body: %w", err)
	}
	return client.Quit()
}

// appendFooter adds "-- name\nurl" unless the body already mentions either.
func appendFooter(body, appName, appURL string) string {
	text := strings.TrimRight(body, " \t\r\n")
	if appName == "" && appURL == "" {
		return text
	}
	if (appURL != "" && strings.Contains(text, appURL)) || (appName != "" && strings.Contains(text, appName)) {
		return text
	}

	footer := "-- " + appName
	if appURL != "" {
		footer += "\n" + appURL
	}
	if text == "" {
		return footer
	}
	return text + "\n\n" + footer
}

func buildMessage(from, to, subject, body string) []byte {
	var sb strings.Builder
	sb.WriteString("From: " + from + "\r\n")
	sb.WriteString("To: " + to + "\r\n")
	sb.WriteString("Subject: " + sanitizeHeader(subject) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	sb.WriteString("\r\n")
	return []byte(sb.String())
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
