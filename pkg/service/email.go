// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/jllopis/onyx/pkg/errors"
	"github.com/jllopis/onyx/pkg/module"
	"github.com/jllopis/onyx/pkg/telemetry"
)

// EmailServiceName is the registered name of the email service.
const EmailServiceName = "email-service"

// Email is an outgoing message.
type Email struct {
	Recipient string
	Subject   string
	Content   string
}

// Sender delivers email.
type Sender interface {
	Send(ctx context.Context, e Email) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, e Email) error

func (f SenderFunc) Send(ctx context.Context, e Email) error { return f(ctx, e) }

// NewEmailService returns a service that sends email through sender.
func NewEmailService(sender Sender) module.Module {
	return module.New(module.KindService, EmailServiceName, "Performs email operations",
		module.Method{
			Name:        "sendEmail",
			Description: "Send an email to a recipient",
			Parameters: module.Object(map[string]any{
				"recipient": module.StringProp("the recipient of the email"),
				"subject":   module.StringProp("The subject of the email"),
				"content":   module.StringProp("the content of the email"),
			}, "recipient", "subject", "content"),
			Perform: func(ctx context.Context, args module.Args) (any, error) {
				e := Email{
					Recipient: args.String("recipient"),
					Subject:   args.String("subject"),
					Content:   args.String("content"),
				}
				if !strings.Contains(e.Recipient, "@") {
					return nil, errors.New(errors.CodeInvalidInput, "recipient is not an email address", nil).
						WithContext("recipient", e.Recipient)
				}
				if err := sender.Send(ctx, e); err != nil {
					return nil, err
				}
				return fmt.Sprintf("Email sent to %s.", e.Recipient), nil
			},
		},
	)
}

// LogSender only logs outgoing email.
func LogSender(logger *slog.Logger) Sender {
	logger = telemetry.LoggerOr(logger)
	return SenderFunc(func(ctx context.Context, e Email) error {
		logger.InfoContext(ctx, "email not delivered, no smtp configured",
			"recipient", e.Recipient, "subject", e.Subject)
		return nil
	})
}

// SMTPSender delivers through an SMTP relay with PLAIN auth when a
// username is set.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// Send implements Sender.
func (s *SMTPSender) Send(_ context.Context, e Email) error {
	from := s.From
	if from == "" {
		from = s.Username
	}
	port := s.Port
	if port == 0 {
		port = 587
	}
	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}
	send := s.send
	if send == nil {
		send = smtp.SendMail
	}
	addr := net.JoinHostPort(s.Host, strconv.Itoa(port))
	if err := send(addr, auth, from, []string{e.Recipient}, buildMessage(from, e)); err != nil {
		return errors.New(errors.CodeActionFailed, "smtp delivery failed", err).WithRecoverable(true)
	}
	return nil
}

func buildMessage(from string, e Email) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", e.Recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", strings.ReplaceAll(e.Subject, "\n", " "))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(e.Content)
	return []byte(b.String())
}
