package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/campusprint/internal/messaging/queue"
)

func header(msg *sarama.ProducerMessage, key string) string {
	for _, h := range msg.Headers {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestProducer_PublishKeysByOrder(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "notifications" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "ord-42" {
			return errors.New("unexpected key " + string(key))
		}
		if header(msg, HeaderEventType) != "ORDER_CREATED" {
			return errors.New("event type header is missing")
		}
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var wire queue.Message
		if err := json.Unmarshal(raw, &wire); err != nil {
			return err
		}
		if wire.EventType != "ORDER_CREATED" {
			return errors.New("unexpected event type " + wire.EventType)
		}
		return nil
	})

	producer := NewProducerFromSync(mockProducer)
	msg, err := queue.NewMessage("ORDER_CREATED", map[string]string{"orderId": "ord-42"}, time.Now())
	require.NoError(t, err)

	require.NoError(t, producer.Publish(context.Background(), queue.Notifications, msg))
	require.NoError(t, producer.Close())
}

func TestProducer_SendError(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	producer := NewProducerFromSync(mockProducer)
	msg, err := queue.NewMessage("ORDER_READY", map[string]string{"orderId": "ord-1"}, time.Now())
	require.NoError(t, err)

	err = producer.Publish(context.Background(), queue.Notifications, msg)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, mockProducer.Close())
}

func TestProducer_SendCancelledContext(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := producer.Send(ctx, Record{Topic: "analytics", Body: []byte("{}")})
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, mockProducer.Close())
}

func TestPartitionKey(t *testing.T) {
	withOrder, err := queue.NewMessage("PAYMENT_SUCCESS", map[string]string{"orderId": "ord-7", "paymentId": "pay-1"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "ord-7", PartitionKey(withOrder))

	shopOnly, err := queue.NewMessage("SHOP_REGISTERED", map[string]string{"shopId": "shop-1"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "SHOP_REGISTERED", PartitionKey(shopOnly))

	assert.Equal(t, "ANY", PartitionKey(queue.Message{EventType: "ANY", Payload: json.RawMessage(`[1,2]`)}))
}

func TestTopicNames(t *testing.T) {
	assert.Equal(t, "file-processing", Topic(queue.FileProcessing))
	assert.Equal(t, "file-processing.dlq", DLQTopic(Topic(queue.FileProcessing)))

	msg := &sarama.ConsumerMessage{Headers: []*sarama.RecordHeader{
		{Key: []byte(HeaderOriginalTopic), Value: []byte("analytics")},
		{Key: []byte(HeaderEventType), Value: []byte("ORDER_COMPLETED")},
	}}
	assert.Equal(t, "analytics", OriginalTopic(msg))
	assert.Equal(t, "ORDER_COMPLETED", EventType(msg))
	assert.Empty(t, OriginalTopic(&sarama.ConsumerMessage{}))
}
