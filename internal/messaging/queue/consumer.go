package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/metrics"
)

const (
	outcomeAck    = "ack"
	outcomeReject = "reject"

	defaultSourceRetry = time.Second
)

// Consumer выполняет цикл "взять одно сообщение → обработать → ack/reject".
// Отмена ctx проверяется между сообщениями: начатая обработка доводится до конца.
type Consumer struct {
	queue   string
	source  Source
	handler Handler

	logger     *log.Entry
	metrics    *metrics.Metrics
	retryDelay time.Duration
}

// ConsumerOption настраивает Consumer.
type ConsumerOption func(*Consumer)

// WithConsumerLogger задаёт logger.
func WithConsumerLogger(logger *log.Entry) ConsumerOption {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// WithConsumerMetrics задаёт метрики.
func WithConsumerMetrics(m *metrics.Metrics) ConsumerOption {
	return func(c *Consumer) {
		c.metrics = m
	}
}

// WithSourceRetry задаёт паузу после временной ошибки Source.
func WithSourceRetry(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

// NewConsumer создаёт consumer очереди queueName.
func NewConsumer(queueName string, source Source, handler Handler, options ...ConsumerOption) *Consumer {
	c := &Consumer{
		queue:      queueName,
		source:     source,
		handler:    handler,
		retryDelay: defaultSourceRetry,
	}
	for _, option := range options {
		option(c)
	}
	if c.logger == nil {
		c.logger = log.WithField("component", "queue-consumer")
	}
	c.logger = c.logger.WithField("queue", queueName)
	if c.metrics == nil {
		c.metrics = metrics.Default()
	}
	return c
}

// Run обрабатывает сообщения до отмены ctx или закрытия Source.
// Возвращает nil при отмене ctx и ErrClosed, если источник закрыт.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("queue consumer started")
	defer c.logger.Info("queue consumer stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		delivery, err := c.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrClosed) {
				return err
			}
			c.logger.WithError(err).Warn("failed to receive message, retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
			continue
		}

		c.process(ctx, delivery)
	}
}

func (c *Consumer) process(ctx context.Context, delivery Delivery) {
	started := time.Now()

	if err := c.handle(ctx, delivery.Body()); err != nil {
		c.logger.WithError(err).Warn("message rejected to dead-letter queue")
		if rejectErr := delivery.Reject(err); rejectErr != nil {
			c.logger.WithError(rejectErr).Error("failed to reject message")
		}
		c.metrics.RecordQueueOutcome(c.queue, outcomeReject, time.Since(started))
		return
	}

	if err := delivery.Ack(); err != nil {
		c.logger.WithError(err).Error("failed to ack message")
	}
	c.metrics.RecordQueueOutcome(c.queue, outcomeAck, time.Since(started))
}

// handle превращает панику обработчика в ошибку, чтобы сообщение ушло в DLQ.
func (c *Consumer) handle(ctx context.Context, body []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return c.handler(ctx, body)
}
