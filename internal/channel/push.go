package channel

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/metrics"
)

// PushAdapter заменяет push-канал заглушкой: провайдер не подключён, адаптер только логирует.
type PushAdapter struct {
	logger  *log.Entry
	metrics *metrics.Metrics
}

// NewPushAdapter создаёт push-адаптер.
func NewPushAdapter(options ...Option) *PushAdapter {
	cfg := newConfig("push", options)
	return &PushAdapter{logger: cfg.logger, metrics: cfg.metrics}
}

// Send всегда успешен.
func (a *PushAdapter) Send(_ context.Context, userID, title, body string) Result {
	a.logger.WithFields(log.Fields{
		"user_id": userID,
		"title":   title,
		"body":    body,
	}).Info("push notification")
	a.metrics.RecordChannelDelivery(string(Push), true)
	return Result{Channel: Push, Success: true}
}
