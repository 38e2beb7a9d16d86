package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/messaging/queue"
)

// rejoinDelay отделяет повторные сессии, чтобы недоступная DLQ не крутила rebalance вхолостую.
const rejoinDelay = time.Second

// Source читает один топик через consumer group и выдаёт сообщения по одному:
// следующее сообщение партиции не берётся, пока предыдущее не подтверждено или не отклонено.
// Отклонённое сообщение копируется в <topic>.dlq, после чего offset фиксируется.
type Source struct {
	consumer    sarama.ConsumerGroup
	topic       string
	dlqProducer *Producer
	logger      *log.Entry

	handoff chan *delivery
	stopped chan struct{}
	stop    sync.Once
	wg      sync.WaitGroup
}

// NewSource создаёт consumer group groupID для очереди queueName.
func NewSource(brokers []string, groupID, queueName string, dlqProducer *Producer) (*Source, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	return newSource(group, Topic(queueName), dlqProducer), nil
}

func newSource(group sarama.ConsumerGroup, topic string, dlqProducer *Producer) *Source {
	return &Source{
		consumer:    group,
		topic:       topic,
		dlqProducer: dlqProducer,
		logger:      log.WithFields(log.Fields{"component": "kafka-consumer", "topic": topic}),
		handoff:     make(chan *delivery),
		stopped:     make(chan struct{}),
	}
}

// Start запускает цикл Consume; при rebalance Consume завершается и вызывается снова.
func (s *Source) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			if err := s.consumer.Consume(ctx, []string{s.topic}, s); err != nil {
				s.logger.WithError(err).Error("error from consumer")
			}
			if ctx.Err() != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-s.stopped:
				return
			case <-time.After(rejoinDelay):
			}
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for err := range s.consumer.Errors() {
			s.logger.WithError(err).Error("consumer error")
		}
	}()

	s.logger.Info("kafka consumer started")
}

// Next ждёт следующее сообщение.
func (s *Source) Next(ctx context.Context) (queue.Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.stopped:
		return nil, queue.ErrClosed
	case d := <-s.handoff:
		return d, nil
	}
}

// Stop закрывает consumer group и дожидается фоновых горутин.
func (s *Source) Stop() error {
	var closeErr error
	s.stop.Do(func() {
		close(s.stopped)
		if err := s.consumer.Close(); err != nil {
			closeErr = fmt.Errorf("failed to close kafka consumer: %w", err)
		}
		s.wg.Wait()
		s.logger.Info("kafka consumer stopped")
	})
	return closeErr
}

// Setup вызывается при старте сессии.
func (s *Source) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup вызывается при завершении сессии.
func (s *Source) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim передаёт сообщения партиции в Next и ждёт решения по каждому.
func (s *Source) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}

			d := &delivery{source: s, message: message, settled: make(chan bool, 1)}
			select {
			case s.handoff <- d:
			case <-ctx.Done():
				return nil
			case <-s.stopped:
				return nil
			}

			select {
			case commit := <-d.settled:
				if !commit {
					// Сообщение не ушло в DLQ: дальше партицию не читаем, иначе ack следующего
					// сообщения сдвинет offset за отклонённое. Offset откатывается на него,
					// и после перезапуска сессии чтение начнётся с этого сообщения.
					session.ResetOffset(message.Topic, message.Partition, message.Offset, "")
					s.logger.WithFields(log.Fields{
						"partition": message.Partition,
						"offset":    message.Offset,
					}).Warn("stop claim until rejected message is dead-lettered")
					return nil
				}
				session.MarkMessage(message, "")
			case <-ctx.Done():
				return nil
			}

		case <-ctx.Done():
			return nil
		}
	}
}

// sendToDLQ копирует исходное тело в DLQ-топик с диагностическими заголовками.
func (s *Source) sendToDLQ(message *sarama.ConsumerMessage, reason error) error {
	if s.dlqProducer == nil {
		return fmt.Errorf("dead-letter producer is not configured for %s", message.Topic)
	}

	errText := "rejected"
	if reason != nil {
		errText = reason.Error()
	}
	headers := map[string]string{
		HeaderOriginalTopic: message.Topic,
		HeaderErrorMessage:  errText,
		HeaderFailedAt:      time.Now().UTC().Format(time.RFC3339),
	}
	if eventType := headerValue(message, HeaderEventType); eventType != "" {
		headers[HeaderEventType] = eventType
	}

	return s.dlqProducer.Send(context.Background(), Record{
		Topic:   DLQTopic(message.Topic),
		Key:     string(message.Key),
		Body:    message.Value,
		Headers: headers,
	})
}

// delivery ждёт решения по сообщению. settled получает true, если offset нужно зафиксировать.
type delivery struct {
	source  *Source
	message *sarama.ConsumerMessage
	settled chan bool
	once    sync.Once
}

func (d *delivery) Body() []byte { return d.message.Value }

func (d *delivery) Ack() error {
	d.settle(true)
	return nil
}

// Reject переносит сообщение в DLQ. Если DLQ недоступна, ConsumeClaim откатывает offset
// на это сообщение и прекращает чтение партиции до следующей сессии.
func (d *delivery) Reject(reason error) error {
	if err := d.source.sendToDLQ(d.message, reason); err != nil {
		d.source.logger.WithError(err).WithFields(log.Fields{
			"partition": d.message.Partition,
			"offset":    d.message.Offset,
		}).Error("failed to send message to DLQ")
		d.settle(false)
		return err
	}
	d.settle(true)
	return nil
}

func (d *delivery) settle(commit bool) {
	d.once.Do(func() { d.settled <- commit })
}

var _ queue.Source = (*Source)(nil)
