package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/md-rashed-zaman/apptengine/libs/kafkax"
	"github.com/md-rashed-zaman/apptengine/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/apptengine/services/notification-service/internal/sms"
	"github.com/md-rashed-zaman/apptengine/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Recorder persists delivery outcomes.
type Recorder interface {
	Insert(ctx context.Context, n storage.Notification) error
}

// Dispatcher turns appointment events into messages on the client's
// preferred reminder channel.
type Dispatcher struct {
	email  email.Sender
	sms    sms.Sender
	store  Recorder
	logger *slog.Logger
}

func NewDispatcher(emailSender email.Sender, smsSender sms.Sender, store Recorder, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{email: emailSender, sms: smsSender, store: store, logger: logger}
}

// Handle processes one Kafka message. Malformed payloads are logged and
// dropped; only persistence failures are returned.
func (d *Dispatcher) Handle(ctx context.Context, msg kafka.Message) error {
	var evt AppointmentEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		d.logger.Error("invalid appointment event payload", "err", err, "topic", msg.Topic)
		return nil
	}
	if evt.Appointment.ID == "" || evt.Type == "" {
		d.logger.Error("missing appointment event fields", "topic", msg.Topic)
		return nil
	}
	m, ok := Render(evt)
	if !ok {
		return nil
	}

	n := storage.Notification{
		EventID:       kafkax.ExtractEventMeta(msg).EventID,
		EventType:     evt.Type,
		AppointmentID: evt.Appointment.ID,
		ClientID:      evt.Appointment.ClientID,
		Channel:       strings.ToUpper(evt.Client.Channel),
		Subject:       m.Subject,
		Body:          m.Body,
		Status:        StatusSent,
	}
	switch n.Channel {
	case "SMS":
		n.Recipient = evt.Client.Phone
		if n.Recipient == "" {
			n.Status, n.Error = StatusSkipped, "client has no phone number"
			break
		}
		if err := d.sms.Send(ctx, n.Recipient, m.Body); err != nil {
			n.Status, n.Error = StatusFailed, err.Error()
		}
	case "NONE":
		n.Status = StatusSkipped
	default:
		n.Channel = "EMAIL"
		n.Recipient = evt.Client.Email
		if n.Recipient == "" {
			n.Status, n.Error = StatusSkipped, "client has no email address"
			break
		}
		if err := d.email.Send(n.Recipient, m.Subject, m.Body); err != nil {
			n.Status, n.Error = StatusFailed, err.Error()
		}
	}
	if n.Status == StatusFailed {
		d.logger.Error("notification send failed", "appointment_id", n.AppointmentID, "channel", n.Channel, "err", n.Error)
	}

	if err := d.store.Insert(ctx, n); err != nil {
		d.logger.Error("failed to persist notification", "err", err)
		return err
	}
	d.logger.Info("notification processed", "appointment_id", n.AppointmentID, "event", n.EventType, "channel", n.Channel, "status", n.Status)
	return nil
}
