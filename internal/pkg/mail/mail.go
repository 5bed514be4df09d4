package mail

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/mrz1836/postmark"

	"github.com/ManuelReschke/InvoiceFox/internal/pkg/env"
)

var (
	ErrSendFailed    = errors.New("failed to send email")
	ErrInvalidConfig = errors.New("invalid mail configuration")
	ErrInvalidEmail  = errors.New("recipient and subject are required")
)

// Message is a single transactional email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	Tag      string
}

func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" || strings.TrimSpace(m.Subject) == "" {
		return ErrInvalidEmail
	}
	return nil
}

// Sender delivers transactional email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewSenderFromEnv picks the transport from the environment: Postmark when a
// server token is set, SMTP when a host is set, otherwise a sender that only logs.
func NewSenderFromEnv() (Sender, error) {
	from := env.GetEnv("MAIL_SENDER", "no-reply@localhost")
	replyTo := env.GetEnv("MAIL_REPLY_TO", "")

	if token := env.GetEnv("POSTMARK_SERVER_TOKEN", ""); token != "" {
		return NewPostmarkSender(token, env.GetEnv("POSTMARK_ACCOUNT_TOKEN", ""), from, replyTo)
	}
	if host := env.GetEnv("SMTP_HOST", ""); host != "" {
		return &SMTPSender{
			Host:     host,
			Port:     env.GetEnv("SMTP_PORT", "587"),
			Username: env.GetEnv("SMTP_USERNAME", ""),
			Password: env.GetEnv("SMTP_PASSWORD", ""),
			From:     from,
		}, nil
	}

	log.Warn("[Mail] Neither POSTMARK_SERVER_TOKEN nor SMTP_HOST set, emails are only logged")
	return LogSender{}, nil
}

// PostmarkSender sends through Postmark's transactional API.
type PostmarkSender struct {
	client  *postmark.Client
	from    string
	replyTo string
}

func NewPostmarkSender(serverToken, accountToken, from, replyTo string) (*PostmarkSender, error) {
	if serverToken == "" {
		return nil, fmt.Errorf("%w: POSTMARK_SERVER_TOKEN is required", ErrInvalidConfig)
	}
	if from == "" {
		return nil, fmt.Errorf("%w: MAIL_SENDER is required", ErrInvalidConfig)
	}
	return &PostmarkSender{
		client:  postmark.NewClient(serverToken, accountToken),
		from:    from,
		replyTo: replyTo,
	}, nil
}

func (s *PostmarkSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:       s.from,
		ReplyTo:    s.replyTo,
		To:         msg.To,
		Subject:    msg.Subject,
		Tag:        msg.Tag,
		HTMLBody:   msg.HTMLBody,
		TrackOpens: false,
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrSendFailed, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}

// SMTPSender sends through a plain SMTP relay.
type SMTPSender struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	var auth smtp.Auth
	if s.Username != "" && s.Password != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}
	addr := fmt.Sprintf("%s:%s", s.Host, s.Port)

	body := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", s.From, msg.To, msg.Subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			msg.HTMLBody,
	)

	if err := smtp.SendMail(addr, auth, s.From, []string{msg.To}, body); err != nil {
		log.Errorf("[Mail] SMTP send error: %v", err)
		return errors.Join(ErrSendFailed, err)
	}
	log.Infof("[Mail] Email sent to %s via %s", msg.To, addr)
	return nil
}

// LogSender only logs outgoing mail. Used in development.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	log.Infof("[Mail] (not sent) to=%s subject=%q tag=%s", msg.To, msg.Subject, msg.Tag)
	return nil
}
