package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/wneessen/go-mail"
)

// MailConfig holds SMTP submission settings
type MailConfig struct {
	Host     string
	Port     int
	Username string // Also the sender address
	Password string
	To       string
	// MaxRetries bounds redelivery attempts after the first failure
	MaxRetries uint64
	Timeout    time.Duration
}

// DefaultMailConfig returns Gmail submission over STARTTLS
func DefaultMailConfig() MailConfig {
	return MailConfig{
		Host:       "smtp.gmail.com",
		Port:       587,
		MaxRetries: 2,
		Timeout:    30 * time.Second,
	}
}

// MailNotifier sends each message as a plaintext e-mail. TLS is mandatory;
// the relay must offer STARTTLS or delivery fails.
type MailNotifier struct {
	cfg      MailConfig
	hostname string

	send    func(ctx context.Context, msg *mail.Msg) error
	backoff func() backoff.BackOff
}

// NewMailNotifier creates a MailNotifier. hostname is used for Message-IDs.
func NewMailNotifier(cfg MailConfig, hostname string) (*MailNotifier, error) {
	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTimeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}

	n := &MailNotifier{
		cfg:      cfg,
		hostname: hostname,
		send: func(ctx context.Context, msg *mail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		},
	}
	n.backoff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 2 * time.Second
		b.MaxInterval = 10 * time.Second
		b.MaxElapsedTime = time.Minute
		return backoff.WithMaxRetries(b, n.cfg.MaxRetries)
	}
	return n, nil
}

func (n *MailNotifier) Notify(ctx context.Context, msg Message) error {
	m, err := n.buildMessage(msg)
	if err != nil {
		slog.Error("email failed", "subject", msg.Subject, "error", err)
		return err
	}

	operation := func() error {
		return n.send(ctx, m)
	}
	onRetry := func(err error, wait time.Duration) {
		slog.Warn("email delivery failed, retrying", "subject", msg.Subject, "error", err, "wait", wait)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(n.backoff(), ctx), onRetry); err != nil {
		slog.Error("email failed", "subject", msg.Subject, "error", err)
		return fmt.Errorf("failed to send email %q: %w", msg.Subject, err)
	}

	slog.Info("email sent", "subject", msg.Subject)
	return nil
}

func (n *MailNotifier) buildMessage(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(n.cfg.Username); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := m.To(n.cfg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageIDWithValue(uuid.NewString() + "@" + n.hostname)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}
