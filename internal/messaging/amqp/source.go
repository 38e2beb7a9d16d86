package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/messaging/queue"
)

var errDeliveriesClosed = errors.New("rabbitmq: deliveries channel closed")

// Source читает одну очередь с prefetch=1. Канал потребителя открывается лениво
// и пересоздаётся после обрыва; Next вызывается из одной горутины.
type Source struct {
	client *Client
	queue  string
	logger *log.Entry

	mu         sync.Mutex
	ch         *amqp.Channel
	deliveries <-chan amqp.Delivery
}

// Next ждёт следующее сообщение. Временные ошибки соединения возвращаются как есть,
// вызывающий повторяет попытку; после Client.Close возвращается queue.ErrClosed.
func (s *Source) Next(ctx context.Context) (queue.Delivery, error) {
	deliveries, err := s.ensureConsuming()
	if err != nil {
		select {
		case <-s.client.closed:
			return nil, queue.ErrClosed
		default:
		}
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.client.closed:
		return nil, queue.ErrClosed
	case d, ok := <-deliveries:
		if !ok {
			s.reset()
			return nil, errDeliveriesClosed
		}
		return &delivery{raw: d}, nil
	}
}

// Close закрывает канал потребителя.
func (s *Source) Close() error {
	s.reset()
	return nil
}

func (s *Source) ensureConsuming() (<-chan amqp.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deliveries != nil && s.ch != nil && !s.ch.IsClosed() {
		return s.deliveries, nil
	}

	ch, err := s.client.openChannel(1)
	if err != nil {
		return nil, err
	}
	deliveries, err := ch.Consume(s.queue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume %s: %w", s.queue, err)
	}

	s.ch = ch
	s.deliveries = deliveries
	s.logger.Debug("consumer channel opened")
	return deliveries, nil
}

func (s *Source) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ch != nil {
		_ = s.ch.Close()
	}
	s.ch = nil
	s.deliveries = nil
}

// delivery отклоняет сообщения без requeue: брокер переносит их через DLX в DLQ.
type delivery struct {
	raw amqp.Delivery
}

func (d *delivery) Body() []byte { return d.raw.Body }

func (d *delivery) Ack() error {
	return d.raw.Ack(false)
}

func (d *delivery) Reject(error) error {
	return d.raw.Nack(false, false)
}

var _ queue.Source = (*Source)(nil)
