package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CertFox/internal/pkg/env"
)

// Mailer delivers one HTML email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer sends emails via SMTP. Settings are read on every send.
type SMTPMailer struct {
	// sendMail is swapped in tests
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer() *SMTPMailer {
	return &SMTPMailer{sendMail: smtp.SendMail}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	host := env.GetEnv("SMTP_HOST", "")
	if host == "" {
		return fmt.Errorf("SMTP_HOST is not configured")
	}
	port := env.GetEnv("SMTP_PORT", "587")
	username := env.GetEnv("SMTP_USERNAME", "")
	password := env.GetEnv("SMTP_PASSWORD", "")
	sender := env.GetEnv("SMTP_FROM", "")
	if sender == "" {
		sender = "no-reply@localhost"
		log.Warnf("[Mail] SMTP_FROM not set, using default sender: %s", sender)
	}

	var auth smtp.Auth
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	addr := net.JoinHostPort(host, port)

	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	if err := m.sendMail(addr, auth, sender, []string{to}, msg); err != nil {
		log.Errorf("[Mail] SMTP send to %s failed: %v", to, err)
		return err
	}
	log.Infof("[Mail] Email %q sent to %s via %s", subject, to, addr)
	return nil
}
