package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
)

// SMTP delivers with PLAIN auth against a host:port relay.
type SMTP struct {
	server   string
	host     string
	user     string
	password string
	from     string
	renderer *Renderer

	// sendMail is smtp.SendMail; swapped in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTP(server, user, password, from string, renderer *Renderer) (*SMTP, error) {
	if server == "" || user == "" || password == "" {
		return nil, fmt.Errorf("SMTP environment variables are not set")
	}
	host, _, err := net.SplitHostPort(server)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_SERVER format (expected host:port): %w", err)
	}
	if from == "" {
		from = user
	}
	return &SMTP{
		server:   server,
		host:     host,
		user:     user,
		password: password,
		from:     from,
		renderer: renderer,
		sendMail: smtp.SendMail,
	}, nil
}

func (s *SMTP) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	html, err := s.renderer.Render(msg.Template, msg.Data)
	if err != nil {
		return err
	}
	auth := smtp.PlainAuth("", s.user, s.password, s.host)
	if err := s.sendMail(s.server, auth, s.from, []string{msg.To}, compose(s.from, msg.To, msg.Subject, html)); err != nil {
		return fmt.Errorf("failed to send email via %s: %w", s.server, err)
	}
	return nil
}

func compose(from, to, subject, html string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(html)
	b.WriteString("\r\n")
	return []byte(b.String())
}
