package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	mail "github.com/go-mail/mail"
	"github.com/google/uuid"

	appErrors "github.com/unclebandit/campusconnect-mailer/internal/errors"
	"github.com/unclebandit/campusconnect-mailer/internal/logger"
)

type SMTPConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	DisplayName        string
	TLSMode            string // auto | starttls | ssl | none
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// SMTPSender sends through one SMTP relay, dialing per message.
type SMTPSender struct {
	from   Address
	dialer *mail.Dialer
}

// NewSMTPSender fails with a ConfigurationError when credentials are missing.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, appErrors.NewConfiguration(errors.New("email credentials not configured: set EMAIL_USER and EMAIL_APP_PASSWORD"))
	}
	if cfg.Host == "" {
		return nil, appErrors.NewConfiguration(errors.New("smtp host not configured"))
	}

	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if cfg.Timeout > 0 {
		d.Timeout = cfg.Timeout
	}
	switch strings.ToLower(cfg.TLSMode) {
	case "ssl":
		d.SSL = true
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	case "starttls":
		d.StartTLSPolicy = mail.MandatoryStartTLS
	default:
		// auto: go-mail negotiates STARTTLS when offered
	}

	return &SMTPSender{
		from:   Address{Name: cfg.DisplayName, Email: cfg.Username},
		dialer: d,
	}, nil
}

func (s *SMTPSender) From() Address { return s.from }

// Verify opens and closes one authenticated SMTP session.
func (s *SMTPSender) Verify(ctx context.Context) error {
	err := runWithContext(ctx, func() error {
		conn, err := s.dialer.Dial()
		if err != nil {
			return err
		}
		return conn.Close()
	})
	if err != nil {
		return appErrors.NewConfiguration(fmt.Errorf("smtp verify: %w", err))
	}
	logger.Named("mailer").Debug("SMTP connection verified", logger.Email(s.from.Email))
	return nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) (string, error) {
	m := mail.NewMessage()
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(s.from.Email))
	m.SetHeader("Message-ID", messageID)
	m.SetAddressHeader("From", s.from.Email, s.from.Name)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)
	for _, a := range msg.Attachments {
		content := a.Content
		m.Attach(a.Filename, mail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(content)
			return err
		}))
	}

	if err := runWithContext(ctx, func() error { return s.dialer.DialAndSend(m) }); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}
	return messageID, nil
}

// Close is a no-op: connections are not pooled.
func (s *SMTPSender) Close() error { return nil }

// runWithContext returns when fn finishes or ctx is done, whichever is first.
// The dialer timeout bounds fn itself. On ctx expiry fn keeps running and the
// server may still accept the message, so a deadline error means the outcome
// is unknown, not that nothing was sent.
func runWithContext(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func domainOf(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 && i < len(email)-1 {
		return email[i+1:]
	}
	return "localhost"
}

var _ Sender = (*SMTPSender)(nil)
