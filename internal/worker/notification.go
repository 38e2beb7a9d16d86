package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/channel"
	"github.com/vladislavdragonenkov/campusprint/internal/messaging/queue"
)

// ErrMissingRecipient означает, что в сообщении нет получателя; такое сообщение уходит в DLQ.
var ErrMissingRecipient = errors.New("notification recipient is missing")

// SMSSender, EmailSender и PushSender описывают порты адаптеров каналов.
type SMSSender interface {
	Send(ctx context.Context, template channel.SMSTemplate, to string, data channel.TemplateData) channel.Result
}

type EmailSender interface {
	Send(ctx context.Context, template channel.EmailTemplate, to string, data channel.TemplateData) channel.Result
}

type PushSender interface {
	Send(ctx context.Context, userID, title, body string) channel.Result
}

// NotificationHandler раздаёт сообщения очереди notifications по каналам.
// Ошибка возвращается только при неразборчивом сообщении; сбой канала
// отражается в Result и не приводит к DLQ.
type NotificationHandler struct {
	sms    SMSSender
	email  EmailSender
	push   PushSender
	logger *log.Entry
}

// NewNotificationHandler создаёт обработчик очереди notifications.
func NewNotificationHandler(sms SMSSender, email EmailSender, push PushSender, logger *log.Entry) *NotificationHandler {
	if logger == nil {
		logger = log.WithField("component", "notification-worker")
	}
	return &NotificationHandler{sms: sms, email: email, push: push, logger: logger}
}

// Handle реализует queue.Handler.
func (h *NotificationHandler) Handle(ctx context.Context, body []byte) error {
	msg, err := queue.Decode(body)
	if err != nil {
		return err
	}

	kind := Kind(msg.EventType)
	if _, ok := routes[kind]; !ok {
		return fmt.Errorf("unknown notification kind %q", msg.EventType)
	}

	var payload NotificationPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", kind, err)
	}
	if payload.Recipient.UserID == "" {
		return fmt.Errorf("%s: %w", kind, ErrMissingRecipient)
	}

	results := h.Dispatch(ctx, kind, payload)

	fields := log.Fields{
		"kind":     kind,
		"order_id": payload.OrderID,
		"user_id":  payload.Recipient.UserID,
	}
	for _, r := range results {
		fields[string(r.Channel)] = r.Success
	}
	h.logger.WithFields(fields).Info("notification dispatched")
	return nil
}

// Dispatch отправляет уведомление по всем каналам маршрута.
// Каналы без контакта получателя пропускаются.
func (h *NotificationHandler) Dispatch(ctx context.Context, kind Kind, payload NotificationPayload) []channel.Result {
	r := routes[kind]
	data := payload.templateData()
	results := make([]channel.Result, 0, 3)

	if r.sms != "" && payload.Recipient.Phone != "" && h.sms != nil {
		results = append(results, h.sms.Send(ctx, r.sms, payload.Recipient.Phone, data))
	}
	if r.email != "" && payload.Recipient.Email != "" && h.email != nil {
		results = append(results, h.email.Send(ctx, r.email, payload.Recipient.Email, data))
	}
	if r.pushTitle != "" && h.push != nil {
		results = append(results, h.push.Send(ctx, payload.Recipient.UserID, r.pushTitle, pushBody(r.pushTitle, data)))
	}
	return results
}

func pushBody(title string, data channel.TemplateData) string {
	if data.OrderID == "" {
		return title
	}
	return fmt.Sprintf("Order #%s: %s", data.ShortOrderID(), title)
}
