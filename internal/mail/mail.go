// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Duskhollow Contributors

// Package mail delivers account e-mail (confirmation and reset codes).
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/samber/oops"
)

// Dispatcher sends one message to one recipient. Implementations log
// their own delivery failures; callers treat dispatch as best effort.
type Dispatcher interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPDispatcher sends mail through a plain SMTP relay.
type SMTPDispatcher struct {
	addr   string // host:port
	from   string
	auth   smtp.Auth
	logger *slog.Logger
}

// NewSMTPDispatcher creates a dispatcher for the given relay. Username
// may be empty for an unauthenticated relay.
func NewSMTPDispatcher(addr, from, username, password string, logger *slog.Logger) (*SMTPDispatcher, error) {
	if addr == "" || from == "" {
		return nil, oops.Errorf("smtp address and from address are required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var auth smtp.Auth
	if username != "" {
		host, _, _ := strings.Cut(addr, ":")
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPDispatcher{addr: addr, from: from, auth: auth, logger: logger}, nil
}

// Send delivers one message synchronously.
func (d *SMTPDispatcher) Send(_ context.Context, to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		d.from, to, subject, body)

	if err := smtp.SendMail(d.addr, d.auth, d.from, []string{to}, []byte(msg)); err != nil {
		d.logger.Error("mail delivery failed", "to", to, "subject", subject, "error", err)
		return oops.Code("MAIL_SEND_FAILED").With("to", to).Wrap(err)
	}
	return nil
}

// LogDispatcher logs mail instead of sending it. Used in development
// setups without an SMTP relay.
type LogDispatcher struct {
	logger *slog.Logger
}

// NewLogDispatcher creates a log-only dispatcher.
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

// Send logs the message and reports success.
func (d *LogDispatcher) Send(_ context.Context, to, subject, body string) error {
	d.logger.Info("mail (log-only dispatcher)",
		"to", to,
		"subject", subject,
		"body", body,
	)
	return nil
}
