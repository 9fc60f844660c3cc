package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

type EmailConfig struct {
	Addr     string
	Username string
	Password string
	From     string
	To       []string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailChannel sends plain-text mail through an SMTP relay.
type EmailChannel struct {
	cfg  EmailConfig
	auth smtp.Auth
	send sendMailFunc
}

func NewEmailChannel(cfg EmailConfig) (*EmailChannel, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("smtp address is required")
	}
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("email sender and recipients are required")
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		host, _, err := net.SplitHostPort(cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("invalid smtp address: %w", err)
		}
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	return &EmailChannel{cfg: cfg, auth: auth, send: smtp.SendMail}, nil
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.send(e.cfg.Addr, e.auth, e.cfg.From, e.cfg.To, e.compose(msg))
}

func (e *EmailChannel) compose(msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: [fieldline] %s\r\n", sanitizeHeader(msg.Title))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
