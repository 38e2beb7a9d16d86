package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType задаёт закрытый словарь доменных событий.
type EventType string

const (
	EventOrderCreated   EventType = "order.created"
	EventOrderConfirmed EventType = "order.confirmed"
	EventOrderReady     EventType = "order.ready"
	EventOrderCompleted EventType = "order.completed"
	EventOrderCancelled EventType = "order.cancelled"
	EventPaymentSuccess EventType = "payment.success"
	EventPaymentFailed  EventType = "payment.failed"
	EventShopRegistered EventType = "shop.registered"
)

// AllEventTypes перечисляет весь словарь событий.
func AllEventTypes() []EventType {
	return []EventType{
		EventOrderCreated,
		EventOrderConfirmed,
		EventOrderReady,
		EventOrderCompleted,
		EventOrderCancelled,
		EventPaymentSuccess,
		EventPaymentFailed,
		EventShopRegistered,
	}
}

// Valid сообщает, входит ли тип в словарь.
func (t EventType) Valid() bool {
	for _, known := range AllEventTypes() {
		if known == t {
			return true
		}
	}
	return false
}

// TransitionEvent возвращает событие, соответствующее целевому статусу перехода.
func TransitionEvent(target OrderStatus) (EventType, bool) {
	switch target {
	case OrderStatusAccepted:
		return EventOrderConfirmed, true
	case OrderStatusReady:
		return EventOrderReady, true
	case OrderStatusCompleted:
		return EventOrderCompleted, true
	case OrderStatusCancelled:
		return EventOrderCancelled, true
	default:
		return "", false
	}
}

// Event описывает доменное событие внутри процесса. Не сохраняется.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Payload   EventPayload
}

// EventPayload реализуют все типизированные полезные нагрузки.
type EventPayload interface {
	EventType() EventType
}

// OrderCreatedPayload публикуется после сохранения нового заказа.
type OrderCreatedPayload struct {
	OrderID       string          `json:"orderId"`
	UserID        string          `json:"userId"`
	ShopID        string          `json:"shopId"`
	TotalCost     decimal.Decimal `json:"totalCost"`
	Currency      string          `json:"currency"`
	PrintConfig   PrintConfig     `json:"printConfig"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	FileKey       string          `json:"fileKey,omitempty"`
}

func (OrderCreatedPayload) EventType() EventType { return EventOrderCreated }

// OrderConfirmedPayload публикуется, когда копицентр принял заказ.
type OrderConfirmedPayload struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
	ShopID  string `json:"shopId"`
}

func (OrderConfirmedPayload) EventType() EventType { return EventOrderConfirmed }

// OrderReadyPayload публикуется, когда заказ готов к выдаче.
type OrderReadyPayload struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
	ShopID  string `json:"shopId"`
}

func (OrderReadyPayload) EventType() EventType { return EventOrderReady }

// OrderCompletedPayload несёт итоговую стоимость.
type OrderCompletedPayload struct {
	OrderID   string          `json:"orderId"`
	UserID    string          `json:"userId"`
	ShopID    string          `json:"shopId"`
	TotalCost decimal.Decimal `json:"totalCost"`
}

func (OrderCompletedPayload) EventType() EventType { return EventOrderCompleted }

// OrderCancelledPayload несёт необязательную причину отмены.
type OrderCancelledPayload struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
	ShopID  string `json:"shopId"`
	Reason  string `json:"reason,omitempty"`
}

func (OrderCancelledPayload) EventType() EventType { return EventOrderCancelled }

// PaymentSuccessPayload публикуется, когда провайдер подтвердил оплату.
type PaymentSuccessPayload struct {
	PaymentID         string          `json:"paymentId"`
	OrderID           string          `json:"orderId"`
	UserID            string          `json:"userId"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	ProviderPaymentID string          `json:"providerPaymentId,omitempty"`
}

func (PaymentSuccessPayload) EventType() EventType { return EventPaymentSuccess }

// PaymentFailedPayload публикуется, когда провайдер отклонил платёж.
type PaymentFailedPayload struct {
	PaymentID string          `json:"paymentId"`
	OrderID   string          `json:"orderId"`
	UserID    string          `json:"userId"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

func (PaymentFailedPayload) EventType() EventType { return EventPaymentFailed }

// ShopRegisteredPayload публикуется при регистрации копицентра.
type ShopRegisteredPayload struct {
	ShopID  string `json:"shopId"`
	OwnerID string `json:"ownerId"`
	Name    string `json:"name"`
}

func (ShopRegisteredPayload) EventType() EventType { return EventShopRegistered }
