package queue

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/metrics"
)

// SafePublisher публикует сообщения так, что недоступность брокера не ломает бизнес-операцию:
// ошибка логируется как warning, учитывается в метриках и не возвращается.
type SafePublisher struct {
	next    Publisher
	logger  *log.Entry
	metrics *metrics.Metrics
}

// SafeOption настраивает SafePublisher.
type SafeOption func(*SafePublisher)

// WithSafeLogger задаёт logger.
func WithSafeLogger(logger *log.Entry) SafeOption {
	return func(p *SafePublisher) {
		p.logger = logger
	}
}

// WithSafeMetrics задаёт метрики.
func WithSafeMetrics(m *metrics.Metrics) SafeOption {
	return func(p *SafePublisher) {
		p.metrics = m
	}
}

// NewSafePublisher оборачивает next. nil next допустим: сообщения тогда отбрасываются.
func NewSafePublisher(next Publisher, options ...SafeOption) *SafePublisher {
	p := &SafePublisher{next: next}
	for _, option := range options {
		option(p)
	}
	if p.logger == nil {
		p.logger = log.WithField("component", "queue-publisher")
	}
	if p.metrics == nil {
		p.metrics = metrics.Default()
	}
	return p
}

// Publish всегда возвращает nil.
func (p *SafePublisher) Publish(ctx context.Context, queueName string, msg Message) error {
	if p.next == nil {
		p.logger.WithFields(log.Fields{
			"queue":      queueName,
			"event_type": msg.EventType,
		}).Debug("broker is not configured, message dropped")
		return nil
	}

	err := p.next.Publish(ctx, queueName, msg)
	p.metrics.RecordQueuePublish(queueName, err)
	if err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"queue":      queueName,
			"event_type": msg.EventType,
		}).Warn("failed to publish queue message")
	}
	return nil
}

var _ Publisher = (*SafePublisher)(nil)
