package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/campusprint/internal/messaging/queue"
)

const replayClientID = "campusprint-dlq-replay"

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

// recordSender реализуется kafka.Producer.
type recordSender interface {
	Send(ctx context.Context, record kafka.Record) error
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	return a.consumer.ConsumePartition(topic, partition, offset)
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

// kafkaDeps связывает клиента смещений, consumer партиций и producer (только в execute).
type kafkaDeps struct {
	client   offsetClient
	consumer partitionConsumerSource
	sender   recordSender
}

func (d kafkaDeps) close() {
	if d.sender != nil {
		_ = d.sender.Close()
	}
	if d.consumer != nil {
		_ = d.consumer.Close()
	}
	if d.client != nil {
		_ = d.client.Close()
	}
}

var newKafkaDeps = func(cfg config) (kafkaDeps, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.ClientID = replayClientID
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return kafkaDeps{}, fmt.Errorf("create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return kafkaDeps{}, fmt.Errorf("create kafka consumer: %w", err)
	}
	deps := kafkaDeps{client: client, consumer: saramaConsumerAdapter{consumer: consumer}}
	if !cfg.execute {
		return deps, nil
	}

	producer, err := kafka.NewProducer(cfg.brokers,
		kafka.WithClientID(replayClientID),
		kafka.WithProducerLogger(log.WithField("component", "dlq-replay")),
	)
	if err != nil {
		deps.close()
		return kafkaDeps{}, err
	}
	deps.sender = producer
	return deps, nil
}

func runKafka(ctx context.Context, cfg config) error {
	deps, err := newKafkaDeps(cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	r := &kafkaReplayer{cfg: cfg, deps: deps}
	for _, name := range cfg.queues {
		if err := r.replayQueue(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

type replayStats struct {
	scanned  int
	replayed int
	skipped  int
}

func (s *replayStats) add(other replayStats) {
	s.scanned += other.scanned
	s.replayed += other.replayed
	s.skipped += other.skipped
}

// kafkaReplayer возвращает сообщения из <queue>.dlq в исходный топик очереди.
type kafkaReplayer struct {
	cfg  config
	deps kafkaDeps
}

// replayQueue обходит партиции DLQ по возрастанию номера, пока не исчерпан лимит.
func (r *kafkaReplayer) replayQueue(ctx context.Context, queueName string) error {
	if r.deps.client == nil || r.deps.consumer == nil {
		return errors.New("kafka client and consumer are required")
	}
	if r.cfg.execute && r.deps.sender == nil {
		return errors.New("producer is required in execute mode")
	}

	target := kafka.Topic(queueName)
	dlqTopic := kafka.DLQTopic(target)
	partitions, err := r.deps.client.Partitions(dlqTopic)
	if err != nil {
		return fmt.Errorf("list partitions of %s: %w", dlqTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", dlqTopic).Warn("dlq topic has no partitions")
		return nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	var total replayStats
	for _, partition := range partitions {
		left := r.cfg.limit - total.scanned
		if left <= 0 {
			break
		}
		stats, err := r.scanPartition(ctx, dlqTopic, target, partition, left)
		total.add(stats)
		if err != nil {
			return err
		}
	}

	log.WithFields(log.Fields{
		"mode":     mode(r.cfg.execute),
		"queue":    queueName,
		"scanned":  total.scanned,
		"replayed": total.replayed,
		"skipped":  total.skipped,
	}).Info("dlq replay finished")
	return nil
}

// startOffset возвращает смещение начала чтения; fromNewest берёт последние limit сообщений.
func (r *kafkaReplayer) startOffset(oldest, newest int64, limit int) int64 {
	if !r.cfg.fromNewest {
		return oldest
	}
	return max(newest-int64(limit), oldest)
}

// scanPartition читает партицию до high watermark, зафиксированного на старте,
// чтобы сообщения, попавшие в DLQ во время прогона, не зациклили replay.
func (r *kafkaReplayer) scanPartition(ctx context.Context, dlqTopic, target string, partition int32, limit int) (replayStats, error) {
	var stats replayStats

	oldest, err := r.deps.client.GetOffset(dlqTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("oldest offset of %s/%d: %w", dlqTopic, partition, err)
	}
	newest, err := r.deps.client.GetOffset(dlqTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("newest offset of %s/%d: %w", dlqTopic, partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	pc, err := r.deps.consumer.ConsumePartition(dlqTopic, partition, r.startOffset(oldest, newest, limit))
	if err != nil {
		return stats, fmt.Errorf("consume %s/%d: %w", dlqTopic, partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for stats.scanned < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case consumerErr := <-pc.Errors():
			if consumerErr != nil {
				return stats, fmt.Errorf("consume %s/%d: %w", dlqTopic, partition, consumerErr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			idle.Reset(r.cfg.idleTimeout)
			stats.scanned++

			if err := r.handle(ctx, msg, dlqTopic, target); err != nil {
				if !errors.Is(err, errUnreplayable) {
					return stats, err
				}
				stats.skipped++
				log.WithError(err).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("skip unreplayable dlq message")
			} else {
				stats.replayed++
			}

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

// handle публикует сообщение в execute-режиме или логирует кандидата в dry-run.
func (r *kafkaReplayer) handle(ctx context.Context, msg *sarama.ConsumerMessage, dlqTopic, target string) error {
	record, err := replayRecord(msg, dlqTopic, target)
	if err != nil {
		return err
	}
	if !r.cfg.execute {
		log.WithFields(log.Fields{
			"partition":    msg.Partition,
			"offset":       msg.Offset,
			"target_topic": record.Topic,
			"event_type":   record.Headers[kafka.HeaderEventType],
		}).Info("dlq replay candidate")
		return nil
	}
	if err := r.deps.sender.Send(ctx, record); err != nil {
		return fmt.Errorf("replay %s/%d@%d: %w", dlqTopic, msg.Partition, msg.Offset, err)
	}
	return nil
}

var errUnreplayable = errors.New("unreplayable dlq message")

// replayRecord собирает запись для исходного топика. Тело не меняется;
// сообщения, которые не разбираются как queue.Message, повторно не публикуются.
func replayRecord(msg *sarama.ConsumerMessage, dlqTopic, defaultTopic string) (kafka.Record, error) {
	if len(msg.Value) == 0 {
		return kafka.Record{}, fmt.Errorf("%w: empty body", errUnreplayable)
	}
	decoded, err := queue.Decode(msg.Value)
	if err != nil {
		return kafka.Record{}, fmt.Errorf("%w: %v", errUnreplayable, err)
	}
	return kafka.Record{
		Topic: firstNonEmpty(kafka.OriginalTopic(msg), defaultTopic),
		Key:   string(msg.Key),
		Body:  msg.Value,
		Headers: map[string]string{
			kafka.HeaderEventType:    firstNonEmpty(kafka.EventType(msg), decoded.EventType),
			kafka.HeaderReplayedFrom: dlqTopic,
		},
	}, nil
}
