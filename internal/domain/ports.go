package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// PaymentProvider абстрагирует внешний платёжный шлюз.
type PaymentProvider interface {
	// CreateOrder регистрирует платёж у провайдера и возвращает его идентификатор.
	CreateOrder(ctx context.Context, orderID string, amount decimal.Decimal, currency string) (string, error)
	// Refund возвращает деньги по подтверждённому платежу.
	Refund(ctx context.Context, providerPaymentID string, amount decimal.Decimal) error
}

// EventPublisher публикует доменные события во внутрипроцессную шину.
type EventPublisher interface {
	Publish(ctx context.Context, payload EventPayload) Event
}

// RealtimeEmitter отправляет best-effort события в комнаты user:<id> и shop:<id>.
type RealtimeEmitter interface {
	EmitToUser(userID, event string, data any)
	EmitToShop(shopID, event string, data any)
}

// Имена realtime-событий.
const (
	RealtimeOrderCreated       = "order:created"
	RealtimeOrderStatusChanged = "order:statusChanged"
	RealtimeNotificationNew    = "notification:new"
	RealtimePaymentCompleted   = "payment:completed"
	RealtimePaymentFailed      = "payment:failed"
)

// NopEmitter ничего не отправляет; используется, когда шлюз не подключён.
type NopEmitter struct{}

func (NopEmitter) EmitToUser(string, string, any) {}
func (NopEmitter) EmitToShop(string, string, any) {}
