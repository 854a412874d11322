package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/domain"
)

const alertSubject = "ALERT: Safe word detected!"

// SMSSender delivers a short text message to one phone number.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// EmailSender delivers a plain-text email to one address.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// Multi fans an alert out to every configured contact channel. Delivery
// is best effort: one failing contact never blocks the others, and the
// returned error joins everything that went wrong.
type Multi struct {
	sms     SMSSender
	email   EmailSender
	timeout time.Duration
	log     *logrus.Entry
}

func NewMulti(sms SMSSender, email EmailSender, timeout time.Duration, logger *logrus.Logger) *Multi {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Multi{
		sms:     sms,
		email:   email,
		timeout: timeout,
		log:     logger.WithField("component", "notify"),
	}
}

func (m *Multi) Notify(ctx context.Context, contacts []domain.Contact, alert domain.Alert) error {
	if len(contacts) == 0 {
		return nil
	}

	body := alertBody(alert)

	var errs []error
	for _, contact := range contacts {
		if contact.Phone != "" {
			if err := m.attempt(ctx, func(ctx context.Context) error {
				return m.sms.SendSMS(ctx, contact.Phone, alertSubject)
			}); err != nil {
				errs = append(errs, fmt.Errorf("sms to %s: %w", contact.Phone, err))
				m.deliveryLog(contact, "sms").WithError(err).Warn("alert delivery failed")
			} else {
				m.deliveryLog(contact, "sms").Info("alert delivered")
			}
		}
		if contact.Email != "" {
			if err := m.attempt(ctx, func(ctx context.Context) error {
				return m.email.SendEmail(ctx, contact.Email, alertSubject, body)
			}); err != nil {
				errs = append(errs, fmt.Errorf("email to %s: %w", contact.Email, err))
				m.deliveryLog(contact, "email").WithError(err).Warn("alert delivery failed")
			} else {
				m.deliveryLog(contact, "email").Info("alert delivered")
			}
		}
	}
	return errors.Join(errs...)
}

// attempt bounds a single delivery so one stuck provider cannot stall
// the whole fan-out.
func (m *Multi) attempt(ctx context.Context, send func(context.Context) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return send(attemptCtx)
}

func (m *Multi) deliveryLog(contact domain.Contact, channel string) *logrus.Entry {
	return m.log.WithFields(logrus.Fields{
		"contact": contact.Name,
		"channel": channel,
	})
}

func alertBody(alert domain.Alert) string {
	return fmt.Sprintf("Safe word was detected. Alert triggered at %s.", alert.At.Format(time.RFC1123))
}
