// Package worker обрабатывает сообщения очередей notifications, analytics и file-processing.
package worker

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/campusprint/internal/channel"
	"github.com/vladislavdragonenkov/campusprint/internal/domain"
)

// Kind задаёт тип сообщения очереди notifications.
type Kind string

const (
	KindOrderCreated   Kind = "ORDER_CREATED"
	KindOrderConfirmed Kind = "ORDER_CONFIRMED"
	KindOrderReady     Kind = "ORDER_READY"
	KindOrderCompleted Kind = "ORDER_COMPLETED"
	KindOrderCancelled Kind = "ORDER_CANCELLED"
	KindPaymentSuccess Kind = "PAYMENT_SUCCESS"
	KindPaymentFailed  Kind = "PAYMENT_FAILED"
	KindShopRegistered Kind = "SHOP_REGISTERED"
)

var kindByEvent = map[domain.EventType]Kind{
	domain.EventOrderCreated:   KindOrderCreated,
	domain.EventOrderConfirmed: KindOrderConfirmed,
	domain.EventOrderReady:     KindOrderReady,
	domain.EventOrderCompleted: KindOrderCompleted,
	domain.EventOrderCancelled: KindOrderCancelled,
	domain.EventPaymentSuccess: KindPaymentSuccess,
	domain.EventPaymentFailed:  KindPaymentFailed,
	domain.EventShopRegistered: KindShopRegistered,
}

// KindFor возвращает тип сообщения для доменного события.
func KindFor(eventType domain.EventType) (Kind, bool) {
	kind, ok := kindByEvent[eventType]
	return kind, ok
}

// AllKinds перечисляет закрытый набор типов.
func AllKinds() []Kind {
	return []Kind{
		KindOrderCreated,
		KindOrderConfirmed,
		KindOrderReady,
		KindOrderCompleted,
		KindOrderCancelled,
		KindPaymentSuccess,
		KindPaymentFailed,
		KindShopRegistered,
	}
}

// NotificationPayload описывает полезную нагрузку сообщения очереди notifications.
// Контакты получателя добавляются при публикации, чтобы worker не ходил в хранилище.
type NotificationPayload struct {
	Recipient channel.Recipient `json:"recipient"`
	OrderID   string            `json:"orderId,omitempty"`
	ShopID    string            `json:"shopId,omitempty"`
	ShopName  string            `json:"shopName,omitempty"`
	Amount    decimal.Decimal   `json:"amount"`
	Currency  string            `json:"currency,omitempty"`
	Reason    string            `json:"reason,omitempty"`
}

func (p NotificationPayload) templateData() channel.TemplateData {
	return channel.TemplateData{
		Name:     p.Recipient.Name,
		OrderID:  p.OrderID,
		ShopName: p.ShopName,
		Amount:   p.Amount,
		Currency: p.Currency,
		Reason:   p.Reason,
	}
}

// FileJob описывает задание очереди file-processing.
type FileJob struct {
	OrderID string `json:"orderId"`
	FileKey string `json:"fileKey"`
	Pages   int    `json:"pages"`
}
