// Package smtpmail delivers harvest reports over SMTP.
package smtpmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/target/harvestd/internal/core"
)

// DefaultTimeout bounds one delivery when Options.Timeout is unset.
const DefaultTimeout = 30 * time.Second

// Sender delivers composed messages. *mail.Client satisfies it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Options configures a Mailer.
type Options struct {
	Host     string // Required
	Port     int
	Username string
	Password string
	From     string // Required
	// Timeout bounds dialing and sending one message.
	Timeout time.Duration
	Logger  *slog.Logger
	// Now stamps the Date header. Defaults to time.Now.
	Now func() time.Time
	// Sender replaces the SMTP client, mainly in tests.
	Sender Sender
}

// Mailer sends plain-text mail through one SMTP relay.
type Mailer struct {
	sender  Sender
	from    string
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

var _ core.Mailer = (*Mailer)(nil)

// New builds a Mailer. STARTTLS is used when the relay offers it.
func New(opts Options) (*Mailer, error) {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		return nil, errors.New("smtp host is required")
	}
	from := strings.TrimSpace(opts.From)
	if err := mail.NewMsg().From(from); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if opts.Port <= 0 {
		opts.Port = 25
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	sender := opts.Sender
	if sender == nil {
		clientOpts := []mail.Option{
			mail.WithPort(opts.Port),
			mail.WithTimeout(opts.Timeout),
			mail.WithTLSPolicy(mail.TLSOpportunistic),
		}
		if opts.Username != "" {
			clientOpts = append(clientOpts,
				mail.WithSMTPAuth(mail.SMTPAuthPlain),
				mail.WithUsername(opts.Username),
				mail.WithPassword(opts.Password),
			)
		}
		client, err := mail.NewClient(host, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("smtp client: %w", err)
		}
		sender = client
	}

	return &Mailer{
		sender:  sender,
		from:    from,
		timeout: opts.Timeout,
		logger:  logger.With("component", "smtpmail"),
		now:     now,
	}, nil
}

// Send delivers msg within the mailer timeout. Bcc recipients receive the mail
// without appearing in its headers.
func (m *Mailer) Send(ctx context.Context, msg core.MailMessage) error {
	to := cleanAddresses(msg.To)
	bcc := cleanAddresses(msg.Bcc)
	if len(to)+len(bcc) == 0 {
		return errors.New("mail has no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	composed, err := m.compose(to, bcc, msg.Subject, msg.Body)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.sender.DialAndSendWithContext(ctx, composed); err != nil {
		return fmt.Errorf("smtp send to %d recipients: %w", len(to)+len(bcc), err)
	}
	m.logger.DebugContext(ctx, "mail sent", "subject", msg.Subject, "recipients", len(to)+len(bcc))
	return nil
}

func (m *Mailer) compose(to, bcc []string, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if len(to) > 0 {
		if err := msg.To(to...); err != nil {
			return nil, fmt.Errorf("to addresses: %w", err)
		}
	}
	if len(bcc) > 0 {
		if err := msg.Bcc(bcc...); err != nil {
			return nil, fmt.Errorf("bcc addresses: %w", err)
		}
	}
	msg.Subject(subject)
	msg.SetDateWithValue(m.now())
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

func cleanAddresses(in []string) []string {
	out := make([]string, 0, len(in))
	for _, a := range in {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// LogMailer records mail in the log instead of sending it. Used when no relay is configured.
type LogMailer struct {
	Logger *slog.Logger
}

// Send implements core.Mailer.
func (l LogMailer) Send(ctx context.Context, msg core.MailMessage) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "mail delivery disabled, dropping message",
		"subject", msg.Subject,
		"to", len(msg.To),
		"bcc", len(msg.Bcc),
	)
	return nil
}
