package email

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"

	"github.com/codeveda/records-api/internal/config"
	"github.com/codeveda/records-api/internal/model"
)

// placeholder accounts created for walk-in patients have no real mailbox
const externalDomain = "@external.local"

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func newMessage(from, to, subject, body string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	return m
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(newMessage(s.from, to, subject, body)); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}

// LogSender stands in when SMTP is disabled.
type LogSender struct{}

func (LogSender) Send(_ context.Context, to, subject, _ string) error {
	log.Info().Str("to", to).Str("subject", subject).Msg("smtp disabled, email not sent")
	return nil
}

// Notifier turns account events into emails.
type Notifier struct {
	sender Sender
}

func NewNotifier(sender Sender) *Notifier {
	return &Notifier{sender: sender}
}

// Handle sends the notice for evt. Event types without a notice are ignored.
func (n *Notifier) Handle(ctx context.Context, evt *model.OutboxEvent) error {
	var subject, template string
	switch evt.EventType {
	case model.EventUserRegistered:
		subject = "Welcome to CodeVeda"
		template = "Hello %s,\n\nYour CodeVeda account (%s) has been created with the %s role.\n"
	case model.EventPatientProvisioned:
		subject = "Your CodeVeda health record"
		template = "Hello %s,\n\nA clinician has opened a health record for you under %s (%s).\n" +
			"Register with this email address to view your visits.\n"
	default:
		return nil
	}

	var p model.UserEventPayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", evt.EventType, err)
	}
	if p.Email == "" || strings.HasSuffix(p.Email, externalDomain) {
		return nil
	}

	return n.sender.Send(ctx, p.Email, subject, fmt.Sprintf(template, p.FullName, p.Email, p.Role))
}
