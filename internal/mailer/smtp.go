// Package mailer sends notification emails.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"text/template"
	"time"

	"github.com/anonto42/nano-midea/fanout/internal/models"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"
)

var (
	// ErrNoAddress is returned for recipients without an email address.
	ErrNoAddress = errors.New("recipient has no email address")
	// ErrRejected marks permanent SMTP failures that are not retried.
	ErrRejected = errors.New("message rejected")
)

// Config configures the SMTP notifier.
type Config struct {
	Addr     string // host:port
	Username string
	Password string
	From     string

	MaxAttempts int
	RetryDelay  time.Duration
	// BreakerThreshold is the number of consecutive failures that pauses
	// sending for BreakerTimeout.
	BreakerThreshold int
	BreakerTimeout   time.Duration
}

// SendFunc has the signature of smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

var messageTemplate = template.Must(template.New("notification").Parse(
	"From: {{.From}}\r\n" +
		"To: {{.To}}\r\n" +
		"Subject: {{.Subject}}\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=\"utf-8\"\r\n" +
		"\r\n" +
		"Hi {{.Name}},\r\n\r\n{{.Body}}\r\n",
))

// SMTPNotifier emails notifications through an SMTP relay.
type SMTPNotifier struct {
	cfg     Config
	auth    smtp.Auth
	send    SendFunc
	retrier retry.Retry[struct{}]
	breaker circuitbreaker.CircuitBreaker[struct{}]
}

// NewSMTPNotifier creates a notifier sending through smtp.SendMail.
func NewSMTPNotifier(cfg Config) *SMTPNotifier {
	return NewSMTPNotifierWithSender(cfg, smtp.SendMail)
}

// NewSMTPNotifierWithSender creates a notifier using send for delivery.
func NewSMTPNotifierWithSender(cfg Config, send SendFunc) *SMTPNotifier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		host := cfg.Addr
		if i := strings.LastIndex(host, ":"); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}

	threshold := uint32(cfg.BreakerThreshold) // #nosec G115 -- validated above
	return &SMTPNotifier{
		cfg:  cfg,
		auth: auth,
		send: send,
		retrier: retry.New[struct{}](retry.Config{
			MaxAttempts:        cfg.MaxAttempts,
			InitialDelay:       cfg.RetryDelay,
			BackoffPolicy:      retry.BackoffExponential,
			Multiplier:         2.0,
			NonRetryableErrors: []error{ErrRejected},
		}),
		breaker: circuitbreaker.New[struct{}](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    cfg.BreakerTimeout,
			Timeout:     cfg.BreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		}),
	}
}

// Notify emails body to recipient about note.
func (n *SMTPNotifier) Notify(ctx context.Context, recipient *models.Member, note *models.Notification, body string) error {
	if recipient == nil || recipient.PrimaryEmail == "" {
		return ErrNoAddress
	}
	msg, err := n.render(recipient, note, body)
	if err != nil {
		return err
	}

	_, err = n.breaker.Execute(ctx, func(ctx context.Context) (struct{}, error) {
		return n.retrier.Do(ctx, func(context.Context) (struct{}, error) {
			err := n.send(n.cfg.Addr, n.auth, n.cfg.From, []string{recipient.PrimaryEmail}, msg)
			return struct{}{}, classify(err)
		})
	})
	if err != nil {
		return fmt.Errorf("email notification %s: %w", note.ID, err)
	}
	return nil
}

func (n *SMTPNotifier) render(recipient *models.Member, note *models.Notification, body string) ([]byte, error) {
	name := recipient.DisplayName
	if name == "" {
		name = recipient.Username
	}
	subject := "You have a new notification"
	if note != nil && note.Event != nil && note.Event.ActionType != "" {
		subject = fmt.Sprintf("New %s activity", note.Event.ActionType)
	}

	var buf bytes.Buffer
	err := messageTemplate.Execute(&buf, map[string]string{
		"From":    n.cfg.From,
		"To":      recipient.PrimaryEmail,
		"Subject": subject,
		"Name":    name,
		"Body":    body,
	})
	if err != nil {
		return nil, fmt.Errorf("render email: %w", err)
	}
	return buf.Bytes(), nil
}

// classify marks 5xx SMTP replies as permanent.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if strings.HasPrefix(err.Error(), "5") {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return err
}
