package channel

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/metrics"
)

// SMSTemplate задаёт подтип SMS-сообщения.
type SMSTemplate string

const (
	SMSOrderCreated   SMSTemplate = "order_created"
	SMSOrderConfirmed SMSTemplate = "order_confirmed"
	SMSOrderReady     SMSTemplate = "order_ready"
	SMSOrderCancelled SMSTemplate = "order_cancelled"
	SMSPaymentSuccess SMSTemplate = "payment_success"
)

// SMSProvider отправляет SMS через внешний сервис.
type SMSProvider interface {
	SendSMS(ctx context.Context, to, body string) error
}

// RenderSMS формирует текст SMS по шаблону.
func RenderSMS(template SMSTemplate, data TemplateData) (string, error) {
	id := data.ShortOrderID()
	switch template {
	case SMSOrderCreated:
		return fmt.Sprintf("CampusPrint: order #%s placed. Total %s. We will notify you when the shop accepts it.", id, data.FormattedAmount()), nil
	case SMSOrderConfirmed:
		return fmt.Sprintf("CampusPrint: order #%s accepted by the shop and queued for printing.", id), nil
	case SMSOrderReady:
		return fmt.Sprintf("CampusPrint: order #%s is ready for pickup.", id), nil
	case SMSOrderCancelled:
		if data.Reason != "" {
			return fmt.Sprintf("CampusPrint: order #%s was cancelled: %s.", id, data.Reason), nil
		}
		return fmt.Sprintf("CampusPrint: order #%s was cancelled.", id), nil
	case SMSPaymentSuccess:
		return fmt.Sprintf("CampusPrint: payment of %s for order #%s received.", data.FormattedAmount(), id), nil
	default:
		return "", fmt.Errorf("unknown sms template %q", template)
	}
}

// SMSAdapter рендерит шаблон и передаёт текст провайдеру.
type SMSAdapter struct {
	provider SMSProvider
	logger   *log.Entry
	metrics  *metrics.Metrics
}

// NewSMSAdapter создаёт SMS-адаптер.
func NewSMSAdapter(provider SMSProvider, options ...Option) *SMSAdapter {
	cfg := newConfig("sms", options)
	return &SMSAdapter{provider: provider, logger: cfg.logger, metrics: cfg.metrics}
}

// Send отправляет SMS. Ошибка провайдера не возвращается, а отражается в Result.
func (a *SMSAdapter) Send(ctx context.Context, template SMSTemplate, to string, data TemplateData) Result {
	body, err := RenderSMS(template, data)
	if err == nil {
		err = a.provider.SendSMS(ctx, to, body)
	}
	if err != nil {
		result, derr := failed(SMS, to, err)
		a.logger.WithError(derr).WithField("template", template).Warn("sms delivery failed")
		a.metrics.RecordChannelDelivery(string(SMS), false)
		return result
	}

	a.metrics.RecordChannelDelivery(string(SMS), true)
	return Result{Channel: SMS, Success: true}
}
