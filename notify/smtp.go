package notify

import (
	"fmt"
	"log/slog"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"github.com/tmaeda/urwatch/config"
)

// SMTPConfig holds mail delivery settings, read from the environment.
// Missing credentials are a configuration failure: the run aborts before
// any target is processed rather than crawling and then losing the mail.
type SMTPConfig struct {
	Server     string
	Port       string
	User       string
	Password   string
	From       string
	To         string
	BCC        string
	MaxRetries int
}

// LoadSMTPConfig reads delivery settings from the environment.
func LoadSMTPConfig() (SMTPConfig, error) {
	cfg := SMTPConfig{
		Server:     "smtp.email.ap-osaka-1.oci.oraclecloud.com",
		Port:       "587",
		MaxRetries: 3,
	}

	if v, ok := config.EnvString("SMTP_SERVER"); ok {
		cfg.Server = v
	}
	if v, ok := config.EnvString("SMTP_PORT"); ok {
		cfg.Port = v
	}
	if v, ok, err := config.EnvInt("SMTP_MAX_RETRIES"); err != nil {
		return SMTPConfig{}, err
	} else if ok {
		cfg.MaxRetries = v
	}

	user, ok := config.EnvString("SMTP_USER")
	if !ok {
		return SMTPConfig{}, fmt.Errorf("SMTP_USER is not set")
	}
	pass, ok := config.EnvString("SMTP_PASS")
	if !ok {
		return SMTPConfig{}, fmt.Errorf("SMTP_PASS is not set")
	}
	cfg.User = user
	cfg.Password = pass

	cfg.From = user
	if v, ok := config.EnvString("FROM_ADDR"); ok {
		cfg.From = v
	}
	to, ok := config.EnvString("DEFAULT_TO_ADDR")
	if !ok {
		return SMTPConfig{}, fmt.Errorf("DEFAULT_TO_ADDR is not set")
	}
	cfg.To = to
	if v, ok := config.EnvString("BCC_ADDR"); ok {
		cfg.BCC = v
	}

	return cfg, nil
}

// Sender delivers composed messages over authenticated SMTP.
type Sender struct {
	cfg SMTPConfig
}

// NewSender builds a sender from the given delivery config.
func NewSender(cfg SMTPConfig) *Sender {
	return &Sender{cfg: cfg}
}

// Send delivers msg, retrying transient failures up to MaxRetries times.
func (s *Sender) Send(msg Message) error {
	addr := s.cfg.Server + ":" + s.cfg.Port
	auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Server)

	recipients := []string{s.cfg.To}
	if s.cfg.BCC != "" {
		recipients = append(recipients, s.cfg.BCC)
	}

	payload := s.buildPayload(msg)

	var lastErr error
	attempts := s.cfg.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = smtp.SendMail(addr, auth, s.cfg.From, recipients, payload)
		if lastErr == nil {
			slog.Info("notification mail sent",
				slog.String("to", s.cfg.To),
				slog.String("subject", msg.Subject),
			)
			return nil
		}
		slog.Warn("mail delivery failed",
			slog.Int("attempt", attempt),
			slog.Int("max", attempts),
			slog.Any("error", lastErr),
		)
		if attempt < attempts {
			time.Sleep(time.Duration(attempt) * 2 * time.Second)
		}
	}
	return fmt.Errorf("send mail after %d attempts: %w", attempts, lastErr)
}

// buildPayload assembles a multipart/alternative message with text and HTML
// parts. The subject is RFC 2047 encoded for the Japanese content.
func (s *Sender) buildPayload(msg Message) []byte {
	const boundary = "urwatch-alt-boundary"

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", s.cfg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", boundary)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.TextBody)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(msg.HTMLBody)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}
