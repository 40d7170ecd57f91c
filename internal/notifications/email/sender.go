package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	mail "gopkg.in/mail.v2"

	"calwatch/internal/alarm"
	"calwatch/internal/config"
	"calwatch/internal/types"
)

// Dialer abstracts the SMTP dial-and-send operation for testability.
// Production code uses *mail.Dialer.
type Dialer interface {
	DialAndSend(m ...*mail.Message) error
}

// Sender is the SMTP implementation of the engine's MailTransport. Every
// send goes through a circuit breaker so a dead SMTP relay fails batches
// fast instead of stalling the reminder pass on each recipient.
type Sender struct {
	dialer   Dialer
	renderer *Renderer
	breaker  *gobreaker.CircuitBreaker[struct{}]
	fromAddr string
	fromName string
	logger   *slog.Logger
}

// NewSender creates a Sender from the SMTP configuration.
func NewSender(cfg config.SMTPConfig, logger *slog.Logger) (*Sender, error) {
	renderer, err := NewRenderer(cfg.FromName)
	if err != nil {
		return nil, err
	}

	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password.Unmask())
	d.Timeout = cfg.SendTimeout

	return newSenderWithDialer(d, renderer, cfg, logger), nil
}

// newSenderWithDialer is the injectable constructor used by tests.
func newSenderWithDialer(d Dialer, renderer *Renderer, cfg config.SMTPConfig, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &Sender{
		dialer:   d,
		renderer: renderer,
		breaker:  cb,
		fromAddr: cfg.FromAddr,
		fromName: cfg.FromName,
		logger:   logger,
	}
}

// SendReminderBatch renders and sends one message per (item, recipient)
// pair of the batch. Every pair is attempted even after a failure; the
// batch-level error aggregates whatever went wrong. Per the engine's
// contract the result is reported per batch, not per recipient.
func (s *Sender) SendReminderBatch(ctx context.Context, batch alarm.MailBatch) error {
	var errs []error
	for _, item := range batch.Items {
		for _, recipient := range item.Recipients {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				return types.NewAppError(types.ErrCodeUpstreamMail, "reminder batch canceled", errors.Join(errs...))
			}
			if err := s.sendOne(batch.Alarm, item, recipient); err != nil {
				s.logger.Error("reminder mail send failed",
					"alarm_id", batch.Alarm.ID,
					"event_id", item.Event.ID,
					"recipient", recipient.Email,
					"error", err,
				)
				errs = append(errs, fmt.Errorf("recipient %s: %w", recipient.Email, err))
			}
		}
	}

	if len(errs) > 0 {
		return types.NewAppError(types.ErrCodeUpstreamMail, "reminder batch partially failed", errors.Join(errs...))
	}
	return nil
}

// sendOne renders and transmits a single reminder message through the
// circuit breaker.
func (s *Sender) sendOne(a types.Alarm, item alarm.MailItem, recipient types.Attendee) error {
	rendered, err := s.renderer.Render(a, item, recipient)
	if err != nil {
		return err
	}

	m := mail.NewMessage()
	m.SetAddressHeader("From", s.fromAddr, s.fromName)
	m.SetAddressHeader("To", recipient.Email, recipient.Name)
	m.SetHeader("Subject", rendered.Subject)
	m.SetBody("text/plain", rendered.BodyText)
	m.AddAlternative("text/html", rendered.BodyHTML)

	_, err = s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.dialer.DialAndSend(m)
	})
	return err
}
