// Package mailer delivers billing login tokens by email.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

// Mailer sends a one-shot login token to an address.
type Mailer interface {
	Send(ctx context.Context, address, token string) error
}

const subject = "Login for your billing account"

func body(token string) string {
	return "Copy & paste this temporary login token:\r\n\r\n" + token +
		"\r\n\r\nIf you didn't try to login, you can safely ignore this email.\r\n"
}

// Log writes tokens to the log instead of sending them. Used when no SMTP server is configured.
type Log struct {
	log *zap.Logger
}

// NewLog constructs a Log mailer.
func NewLog(log *zap.Logger) *Log { return &Log{log: log} }

// Send logs the token.
func (l *Log) Send(_ context.Context, address, token string) error {
	l.log.Info("billing login token", zap.String("email", address), zap.String("token", token))
	return nil
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTP sends plain-text mail through an SMTP relay.
type SMTP struct {
	addr string
	from string
	auth smtp.Auth
	send sendFunc
}

// NewSMTP constructs an SMTP mailer. Empty username disables authentication.
func NewSMTP(addr, from, username, password string) *SMTP {
	var auth smtp.Auth
	if username != "" {
		host := addr
		if i := strings.LastIndex(addr, ":"); i >= 0 {
			host = addr[:i]
		}
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTP{addr: addr, from: from, auth: auth, send: smtp.SendMail}
}

// Send delivers the token mail.
func (s *SMTP) Send(_ context.Context, address, token string) error {
	if strings.ContainsAny(address, "\r\n") {
		return fmt.Errorf("mailer: bad address")
	}
	msg := "From: " + s.from + "\r\n" +
		"To: " + address + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n\r\n" +
		body(token)
	if err := s.send(s.addr, s.auth, s.from, []string{address}, []byte(msg)); err != nil {
		return fmt.Errorf("mailer: %w", err)
	}
	return nil
}
