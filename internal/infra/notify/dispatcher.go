// internal/infra/notify/dispatcher.go
package notify

import (
	"context"
	"errors"
	"fmt"

	domainNotify "speaker_scheduler/internal/domain/notify"
	"speaker_scheduler/internal/domain/person"
	"speaker_scheduler/internal/phone"

	"github.com/sirupsen/logrus"
)

type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// ChatSender posts a message to a chat, e.g. the operator's Telegram chat.
type ChatSender interface {
	SendMessage(chatID int64, text string) error
}

// Dispatcher routes messages to the best available transport. Speakers get SMS
// when SMS is configured and they have a phone, email otherwise. The operator
// gets email and, when configured, a chat message.
type Dispatcher struct {
	sms            SMSSender // nil when SMS is not configured
	mail           EmailSender
	chat           ChatSender // nil when no operator chat is configured
	operatorChatID int64
	adminEmail     string
	logger         *logrus.Entry
}

var (
	_ domainNotify.Channel  = (*Dispatcher)(nil)
	_ domainNotify.Operator = (*Dispatcher)(nil)
)

func NewDispatcher(sms SMSSender, mail EmailSender, adminEmail string, logger *logrus.Entry) *Dispatcher {
	return &Dispatcher{
		sms:        sms,
		mail:       mail,
		adminEmail: adminEmail,
		logger:     logger,
	}
}

// WithOperatorChat mirrors operator messages to chatID through chat.
func (d *Dispatcher) WithOperatorChat(chat ChatSender, chatID int64) *Dispatcher {
	d.chat = chat
	d.operatorChatID = chatID
	return d
}

func (d *Dispatcher) Send(ctx context.Context, to *person.Person, subject, body string) error {
	if to == nil {
		return nil
	}
	logCtx := d.logger.WithFields(logrus.Fields{"person_id": to.ID, "subject": subject})

	if number := phone.Normalize(to.Phone); d.sms != nil && number != "" {
		if err := d.sms.SendSMS(ctx, number, body); err != nil {
			return fmt.Errorf("sms to person %d: %w: %w", to.ID, domainNotify.ErrDelivery, err)
		}
		logCtx.Debug("SMS sent")
		return nil
	}

	if to.Email != "" && d.mail != nil {
		if err := d.mail.SendEmail(ctx, to.Email, subject, body); err != nil {
			return fmt.Errorf("email to person %d: %w: %w", to.ID, domainNotify.ErrDelivery, err)
		}
		logCtx.Debug("Email sent")
		return nil
	}

	logCtx.WithField("name", to.Name).Info("No SMS or email available for person, skipping")
	return nil
}

// NotifyOperator tries every operator transport and reports all failures together.
func (d *Dispatcher) NotifyOperator(ctx context.Context, subject, body string) error {
	var errs []error

	if d.mail != nil && d.adminEmail != "" {
		if err := d.mail.SendEmail(ctx, d.adminEmail, subject, body); err != nil {
			errs = append(errs, fmt.Errorf("operator email: %w", err))
		}
	}
	if d.chat != nil && d.operatorChatID != 0 {
		if err := d.chat.SendMessage(d.operatorChatID, subject+"\n\n"+body); err != nil {
			errs = append(errs, fmt.Errorf("operator chat: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domainNotify.ErrDelivery, errors.Join(errs...))
	}
	return nil
}
