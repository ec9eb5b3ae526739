// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mail delivers account notifications such as welcome and password
// reset messages.
package mail

import (
	"bytes"
	"context"
	"log/slog"
	"slices"
	"sync"
	"text/template"

	"github.com/samber/oops"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Subjects of the messages sent by this module.
const (
	SubjectWelcome       = "Welcome"
	SubjectResetPassword = "Reset your password"
)

var (
	welcomeTemplate = template.Must(template.New("welcome").Parse(
		"Hello {{.Name}},\n\nYour account has been created.\n"))
	resetTemplate = template.Must(template.New("reset").Parse(
		"Hello {{.Name}},\n\nUse the token below to reset your password. It expires at {{.ExpiresAt}}.\n\n{{.Token}}\n"))
)

// WelcomeData fills the welcome message.
type WelcomeData struct {
	Name string
}

// ResetData fills the password reset message.
type ResetData struct {
	Name      string
	Token     string
	ExpiresAt string
}

// Welcome builds the message sent after registration.
func Welcome(to string, data WelcomeData) (Message, error) {
	return render(to, SubjectWelcome, welcomeTemplate, data)
}

// ResetPassword builds the message carrying a password reset token.
func ResetPassword(to string, data ResetData) (Message, error) {
	return render(to, SubjectResetPassword, resetTemplate, data)
}

func render(to, subject string, tmpl *template.Template, data any) (Message, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return Message{}, oops.Code("MAIL_RENDER_FAILED").With("template", tmpl.Name()).Wrap(err)
	}
	return Message{To: to, Subject: subject, Body: buf.String()}, nil
}

// LogMailer writes messages to a logger instead of delivering them. Bodies
// are logged at debug level only since they may carry secrets.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer. A nil logger uses slog.Default.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger.With("component", "mailer")}
}

// Send implements Mailer.
func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return oops.Code("MAIL_RECIPIENT_REQUIRED").With("subject", msg.Subject).Errorf("message has no recipient")
	}
	m.logger.InfoContext(ctx, "mail sent", "to", msg.To, "subject", msg.Subject)
	m.logger.DebugContext(ctx, "mail body", "to", msg.To, "body", msg.Body)
	return nil
}

// MemoryMailer records messages in memory.
type MemoryMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

// NewMemoryMailer creates an empty MemoryMailer.
func NewMemoryMailer() *MemoryMailer {
	return &MemoryMailer{}
}

// Send implements Mailer.
func (m *MemoryMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// FailWith makes subsequent sends return err. A nil err restores delivery.
func (m *MemoryMailer) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Sent returns a copy of the delivered messages in order.
func (m *MemoryMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.sent)
}

// Last returns the most recent message sent to the recipient.
func (m *MemoryMailer) Last(to string) (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To == to {
			return m.sent[i], true
		}
	}
	return Message{}, false
}

var (
	_ Mailer = (*LogMailer)(nil)
	_ Mailer = (*MemoryMailer)(nil)
)
