package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/messaging/queue"
)

const defaultClientID = "campusprint"

// Record описывает одну запись для отправки в топик.
type Record struct {
	Topic   string
	Key     string
	Body    []byte
	Headers map[string]string
}

// Producer публикует сообщения очередей в одноимённые Kafka-топики.
// Ключом партиционирования служит orderId из payload, поэтому события одного заказа
// читаются consumer'ом в порядке публикации.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
	now      func() time.Time
}

// ProducerOption настраивает Producer.
type ProducerOption func(*producerOptions)

type producerOptions struct {
	clientID string
	logger   *log.Entry
}

// WithClientID задаёт client.id, видимый в метриках брокера.
func WithClientID(id string) ProducerOption {
	return func(o *producerOptions) {
		if id != "" {
			o.clientID = id
		}
	}
}

// WithProducerLogger задаёт логгер producer'а.
func WithProducerLogger(logger *log.Entry) ProducerOption {
	return func(o *producerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewProducer создаёт идемпотентный синхронный producer.
func NewProducer(brokers []string, opts ...ProducerOption) (*Producer, error) {
	options := producerOptions{clientID: defaultClientID, logger: log.WithField("component", "kafka-producer")}
	for _, opt := range opts {
		opt(&options)
	}

	config := sarama.NewConfig()
	config.ClientID = options.clientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	p := NewProducerFromSync(producer)
	p.logger = options.logger
	return p, nil
}

// NewProducerFromSync оборачивает готовый SyncProducer (например, из sarama/mocks).
func NewProducerFromSync(producer sarama.SyncProducer) *Producer {
	return &Producer{
		producer: producer,
		logger:   log.WithField("component", "kafka-producer"),
		now:      time.Now,
	}
}

// Publish отправляет сообщение в топик очереди.
func (p *Producer) Publish(ctx context.Context, queueName string, msg queue.Message) error {
	body, err := msg.Encode()
	if err != nil {
		return err
	}
	return p.Send(ctx, Record{
		Topic:   Topic(queueName),
		Key:     PartitionKey(msg),
		Body:    body,
		Headers: map[string]string{HeaderEventType: msg.EventType},
	})
}

// Send синхронно отправляет запись. Отменённый ctx прерывает отправку до обращения к брокеру.
func (p *Producer) Send(ctx context.Context, record Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic:     record.Topic,
		Value:     sarama.ByteEncoder(record.Body),
		Timestamp: p.now(),
	}
	if record.Key != "" {
		msg.Key = sarama.StringEncoder(record.Key)
	}
	for key, value := range record.Headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
	}

	fields := log.Fields{"topic": record.Topic, "key": record.Key}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Error("failed to send message to kafka")
		return fmt.Errorf("send to %s: %w", record.Topic, err)
	}

	fields["partition"] = partition
	fields["offset"] = offset
	p.logger.WithFields(fields).Debug("message sent to kafka")
	return nil
}

// Close закрывает producer.
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

// PartitionKey возвращает orderId из payload, а для событий без заказа (SHOP_REGISTERED) тип события.
func PartitionKey(msg queue.Message) string {
	var ref struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(msg.Payload, &ref); err == nil && ref.OrderID != "" {
		return ref.OrderID
	}
	return msg.EventType
}

var _ queue.Publisher = (*Producer)(nil)
