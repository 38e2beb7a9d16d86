package kafka

import (
	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/campusprint/internal/messaging/queue"
)

// Заголовки сообщений, перенесённых в DLQ-топик и возвращённых из него.
const (
	HeaderEventType     = "x-event-type"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
	HeaderReplayedFrom  = "x-replayed-from"
)

// Topic возвращает топик для очереди; имена совпадают.
func Topic(queueName string) string {
	return queueName
}

// DLQTopic возвращает dead-letter топик для топика.
func DLQTopic(topic string) string {
	return queue.DLQName(topic)
}

// headerValue возвращает значение заголовка или пустую строку.
func headerValue(msg *sarama.ConsumerMessage, key string) string {
	for _, header := range msg.Headers {
		if header != nil && string(header.Key) == key {
			return string(header.Value)
		}
	}
	return ""
}

// OriginalTopic возвращает топик, из которого сообщение попало в DLQ.
func OriginalTopic(msg *sarama.ConsumerMessage) string {
	return headerValue(msg, HeaderOriginalTopic)
}

// EventType возвращает тип события из заголовка сообщения.
func EventType(msg *sarama.ConsumerMessage) string {
	return headerValue(msg, HeaderEventType)
}
