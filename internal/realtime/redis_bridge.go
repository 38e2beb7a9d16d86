package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// DefaultBridgeChannel задаёт канал pub/sub для кадров realtime.
const DefaultBridgeChannel = "campusprint:realtime"

const (
	bridgeRetryInitial = 500 * time.Millisecond
	bridgeRetryMax     = 30 * time.Second
)

var errSubscriptionClosed = errors.New("realtime subscription closed")

// envelope хранит комнату и готовый кадр.
type envelope struct {
	Room  string          `json:"room"`
	Frame json.RawMessage `json:"frame"`
}

// RedisBridge рассылает кадры через Redis pub/sub, чтобы клиент получил
// событие независимо от того, к какому экземпляру API он подключён.
type RedisBridge struct {
	client  *redis.Client
	hub     *Hub
	channel string
	logger  *log.Entry
}

// BridgeOption настраивает RedisBridge.
type BridgeOption func(*RedisBridge)

// WithBridgeChannel задаёт имя канала.
func WithBridgeChannel(channel string) BridgeOption {
	return func(b *RedisBridge) {
		b.channel = channel
	}
}

// WithBridgeLogger задаёт logger.
func WithBridgeLogger(logger *log.Entry) BridgeOption {
	return func(b *RedisBridge) {
		b.logger = logger
	}
}

// NewRedisBridge создаёт мост. Hub начинает им пользоваться, когда Run установит подписку.
func NewRedisBridge(client *redis.Client, hub *Hub, options ...BridgeOption) *RedisBridge {
	b := &RedisBridge{client: client, hub: hub, channel: DefaultBridgeChannel}
	for _, option := range options {
		option(b)
	}
	if b.logger == nil {
		b.logger = log.WithField("component", "realtime-bridge")
	}
	return b
}

// Publish отправляет кадр в канал.
func (b *RedisBridge) Publish(ctx context.Context, room string, frame []byte) error {
	payload, err := json.Marshal(envelope{Room: room, Frame: frame})
	if err != nil {
		return fmt.Errorf("encode realtime envelope: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish realtime envelope: %w", err)
	}
	return nil
}

// Run держит подписку на канал до отмены ctx и доставляет кадры локальным клиентам.
// Hub рассылает через мост только пока подписка жива; без неё доставка локальная,
// а мост переподписывается с нарастающей паузой.
func (b *RedisBridge) Run(ctx context.Context) error {
	defer b.hub.SetFanout(nil)

	backoff := bridgeRetryInitial
	for {
		subscribed, err := b.listen(ctx)
		b.hub.SetFanout(nil)
		if ctx.Err() != nil {
			return nil
		}
		if subscribed {
			backoff = bridgeRetryInitial
		}
		b.logger.WithError(err).WithField("retry_in", backoff.String()).Warn("realtime bridge is not subscribed, delivering locally")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		backoff = min(backoff*2, bridgeRetryMax)
	}
}

// listen сообщает, успела ли подписка установиться, и причину её потери.
func (b *RedisBridge) listen(ctx context.Context) (bool, error) {
	sub := b.client.Subscribe(ctx, b.channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return false, fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.hub.SetFanout(b)
	b.logger.WithField("channel", b.channel).Info("realtime bridge subscribed")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return true, errSubscriptionClosed
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil || env.Room == "" {
				b.logger.WithError(err).Warn("skipping malformed realtime envelope")
				continue
			}
			b.hub.Deliver(env.Room, env.Frame)
		}
	}
}

// Ping проверяет доступность Redis (для health-проверок).
func (b *RedisBridge) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
