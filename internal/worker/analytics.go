package worker

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/domain"
	"github.com/vladislavdragonenkov/campusprint/internal/messaging/queue"
	"github.com/vladislavdragonenkov/campusprint/internal/metrics"
)

// payloadFactories создаёт пустую полезную нагрузку по типу события.
var payloadFactories = map[domain.EventType]func() domain.EventPayload{
	domain.EventOrderCreated:   func() domain.EventPayload { return &domain.OrderCreatedPayload{} },
	domain.EventOrderConfirmed: func() domain.EventPayload { return &domain.OrderConfirmedPayload{} },
	domain.EventOrderReady:     func() domain.EventPayload { return &domain.OrderReadyPayload{} },
	domain.EventOrderCompleted: func() domain.EventPayload { return &domain.OrderCompletedPayload{} },
	domain.EventOrderCancelled: func() domain.EventPayload { return &domain.OrderCancelledPayload{} },
	domain.EventPaymentSuccess: func() domain.EventPayload { return &domain.PaymentSuccessPayload{} },
	domain.EventPaymentFailed:  func() domain.EventPayload { return &domain.PaymentFailedPayload{} },
	domain.EventShopRegistered: func() domain.EventPayload { return &domain.ShopRegisteredPayload{} },
}

// DecodeEventPayload разбирает полезную нагрузку доменного события.
func DecodeEventPayload(eventType domain.EventType, raw json.RawMessage) (domain.EventPayload, error) {
	factory, ok := payloadFactories[eventType]
	if !ok {
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
	payload := factory()
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	return payload, nil
}

// AnalyticsHandler учитывает доменные события из очереди analytics.
type AnalyticsHandler struct {
	metrics *metrics.Metrics
	logger  *log.Entry
}

// NewAnalyticsHandler создаёт обработчик очереди analytics.
func NewAnalyticsHandler(m *metrics.Metrics, logger *log.Entry) *AnalyticsHandler {
	if m == nil {
		m = metrics.Default()
	}
	if logger == nil {
		logger = log.WithField("component", "analytics-worker")
	}
	return &AnalyticsHandler{metrics: m, logger: logger}
}

// Handle реализует queue.Handler.
func (h *AnalyticsHandler) Handle(_ context.Context, body []byte) error {
	msg, err := queue.Decode(body)
	if err != nil {
		return err
	}

	eventType := domain.EventType(msg.EventType)
	if _, err := DecodeEventPayload(eventType, msg.Payload); err != nil {
		return err
	}

	h.metrics.RecordAnalyticsEvent(string(eventType))
	h.logger.WithFields(log.Fields{
		"event_type": eventType,
		"timestamp":  msg.Timestamp,
	}).Debug("analytics event recorded")
	return nil
}
