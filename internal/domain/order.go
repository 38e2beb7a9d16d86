package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа на печать.
type OrderStatus string

const (
	// OrderStatusPending: заказ создан и ждёт подтверждения копицентром.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusAccepted: копицентр принял заказ в работу.
	OrderStatusAccepted OrderStatus = "ACCEPTED"
	// OrderStatusPrinting: устаревший синоним ACCEPTED, встречается в старых записях.
	OrderStatusPrinting OrderStatus = "PRINTING"
	// OrderStatusReady: заказ напечатан и ждёт выдачи.
	OrderStatusReady OrderStatus = "READY"
	// OrderStatusCompleted: заказ выдан студенту.
	OrderStatusCompleted OrderStatus = "COMPLETED"
	// OrderStatusCancelled: заказ отменён.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// orderTransitions задаёт закрытую таблицу допустимых переходов.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusAccepted, OrderStatusCancelled},
	OrderStatusAccepted:  {OrderStatusReady, OrderStatusCancelled},
	OrderStatusPrinting:  {OrderStatusReady, OrderStatusCancelled},
	OrderStatusReady:     {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted: {},
	OrderStatusCancelled: {},
}

// ActiveOrderStatuses учитываются в сигнале нагрузки копицентра.
var ActiveOrderStatuses = []OrderStatus{OrderStatusPending, OrderStatusAccepted, OrderStatusPrinting}

// AllOrderStatuses перечисляет все известные статусы.
func AllOrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending,
		OrderStatusAccepted,
		OrderStatusPrinting,
		OrderStatusReady,
		OrderStatusCompleted,
		OrderStatusCancelled,
	}
}

// CanTransition сообщает, разрешён ли переход from → to.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedTransitions возвращает копию списка допустимых целевых статусов.
func AllowedTransitions(from OrderStatus) []OrderStatus {
	next := orderTransitions[from]
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

// IsTerminal сообщает, что из статуса переходов нет.
func (s OrderStatus) IsTerminal() bool {
	next, ok := orderTransitions[s]
	return ok && len(next) == 0
}

// ParseOrderStatus разбирает статус без учёта регистра.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := orderTransitions[status]; !ok {
		return "", NewValidationError("status", fmt.Sprintf("unknown order status %q", raw))
	}
	return status, nil
}

// PaymentMethod задаёт способ оплаты заказа.
type PaymentMethod string

const (
	PaymentMethodOnline PaymentMethod = "ONLINE"
	PaymentMethodCash   PaymentMethod = "CASH"
)

// PrintConfig задаёт параметры печати.
type PrintConfig struct {
	Pages       int  `json:"pages"`
	Copies      int  `json:"copies"`
	Color       bool `json:"color"`
	DoubleSided bool `json:"doubleSided"`
	Binding     bool `json:"binding,omitempty"`
}

// Validate проверяет предусловия движка ценообразования (pages ≥ 1, copies ≥ 1).
func (c PrintConfig) Validate() error {
	if c.Pages < 1 {
		return NewValidationError("pages", "must be at least 1")
	}
	if c.Copies < 1 {
		return NewValidationError("copies", "must be at least 1")
	}
	return nil
}

// Order агрегирует состояние заказа на печать.
type Order struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	ShopID        string          `json:"shopId"`
	Status        OrderStatus     `json:"status"`
	PrintConfig   PrintConfig     `json:"printConfig"`
	FileKey       string          `json:"fileKey,omitempty"`
	TotalCost     decimal.Decimal `json:"totalCost"` // фиксируется при создании и дальше не меняется
	Currency      string          `json:"currency"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	CancelReason  string          `json:"cancelReason,omitempty"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// ValidateCoordinates проверяет широту и долготу.
func ValidateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return NewValidationError("lat", "must be within [-90, 90]")
	}
	if lng < -180 || lng > 180 {
		return NewValidationError("lng", "must be within [-180, 180]")
	}
	return nil
}
