// Package queue описывает брокеро-независимый контракт долговечных очередей:
// формат сообщения, публикацию, вычитку по одному сообщению и dead-lettering.
//
// Реализации: internal/messaging/amqp (RabbitMQ), internal/messaging/kafka (Kafka)
// и MemoryBroker для тестов и локального запуска.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Имена очередей. У каждой есть DLQ с суффиксом ".dlq".
const (
	Notifications  = "notifications"
	Analytics      = "analytics"
	FileProcessing = "file-processing"

	dlqSuffix = ".dlq"
)

// ContentType сообщений во всех бэкендах.
const ContentType = "application/json"

// ErrClosed возвращает Source после закрытия соединения с брокером.
var ErrClosed = errors.New("queue source closed")

// Names возвращает все рабочие очереди.
func Names() []string {
	return []string{Notifications, Analytics, FileProcessing}
}

// DLQName возвращает имя dead-letter очереди для queueName.
func DLQName(queueName string) string {
	return queueName + dlqSuffix
}

// Message описывает формат сообщения на проводе.
type Message struct {
	EventType string          `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp"`
}

// NewMessage сериализует payload и проставляет время в RFC3339 (UTC).
func NewMessage(eventType string, payload any, at time.Time) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Message{
		EventType: eventType,
		Payload:   raw,
		Timestamp: at.UTC().Format(time.RFC3339),
	}, nil
}

// Encode возвращает тело сообщения для брокера.
func (m Message) Encode() ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal queue message: %w", err)
	}
	return body, nil
}

// Decode разбирает тело сообщения. Пустой eventType считается ошибкой формата.
func Decode(body []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return Message{}, fmt.Errorf("decode queue message: %w", err)
	}
	if m.EventType == "" {
		return Message{}, errors.New("decode queue message: eventType is empty")
	}
	return m, nil
}

// Publisher публикует сообщение в именованную очередь.
type Publisher interface {
	Publish(ctx context.Context, queueName string, msg Message) error
}

// Delivery представляет одно полученное сообщение. Ровно один из Ack/Reject должен быть вызван.
type Delivery interface {
	Body() []byte
	// Ack подтверждает обработку.
	Ack() error
	// Reject отклоняет сообщение без повторной постановки: брокер переносит его в DLQ.
	Reject(reason error) error
}

// Source выдаёт сообщения одной очереди по одному.
// Next блокируется до появления сообщения или отмены ctx.
type Source interface {
	Next(ctx context.Context) (Delivery, error)
}

// Handler обрабатывает тело сообщения. Ошибка означает отправку в DLQ.
type Handler func(ctx context.Context, body []byte) error
