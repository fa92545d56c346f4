package notifications

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"

	"github.com/angelmondragon/sourcing-engine/pkg/config"
	"github.com/angelmondragon/sourcing-engine/pkg/logger"
)

// Message is a rendered plain-text email.
type Message struct {
	To      []string
	Subject string
	Text    string
}

// Sender delivers a message. Implementations must honour ctx cancellation.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

func (m Message) validate() error {
	if len(m.To) == 0 {
		return errors.New("message recipient required")
	}
	for _, to := range m.To {
		if strings.TrimSpace(to) == "" {
			return errors.New("message recipient required")
		}
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.New("message subject required")
	}
	return nil
}

// mailer is the part of *email.Email used for delivery.
type mailer interface {
	Send(addr string, a smtp.Auth) error
}

// SMTPSender relays messages through an SMTP server.
type SMTPSender struct {
	from  string
	addr  string
	auth  smtp.Auth
	build func(from string, msg Message) mailer
}

// NewSMTPSender builds a sender from config. Auth is skipped when no user is set.
func NewSMTPSender(cfg config.SMTPConfig) (*SMTPSender, error) {
	if !cfg.Enabled() {
		return nil, errors.New("smtp host is required")
	}
	from := cfg.From
	if from == "" {
		from = cfg.User
	}
	if from == "" {
		return nil, errors.New("smtp from address is required")
	}
	var auth smtp.Auth
	if cfg.User != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)
	}
	return &SMTPSender{
		from:  from,
		addr:  fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		auth:  auth,
		build: buildEmail,
	}, nil
}

func buildEmail(from string, msg Message) mailer {
	e := email.NewEmail()
	e.From = from
	e.To = msg.To
	e.Subject = msg.Subject
	e.Text = []byte(msg.Text)
	return e
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	e := s.build(s.from, msg)

	done := make(chan error, 1)
	go func() {
		done <- e.Send(s.addr, s.auth)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("smtp send: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	}
}

// LogSender writes messages to the log instead of sending them. Used when no
// SMTP relay is configured.
type LogSender struct {
	logg *logger.Logger
}

func NewLogSender(logg *logger.Logger) *LogSender {
	return &LogSender{logg: logg}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"to":      strings.Join(msg.To, ","),
			"subject": msg.Subject,
		})
		s.logg.Info(logCtx, "smtp disabled; notification logged only")
	}
	return nil
}
