package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus описывает состояние платежа в системе.
type PaymentStatus string

const (
	// PaymentStatusPending: платёж инициирован, но не подтверждён.
	PaymentStatusPending PaymentStatus = "PENDING"
	// PaymentStatusSuccess: провайдер подтвердил оплату.
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	// PaymentStatusFailed: провайдер отклонил платёж.
	PaymentStatusFailed PaymentStatus = "FAILED"
	// PaymentStatusRefunded: деньги возвращены студенту.
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// Payment описывает платёж по заказу. На один заказ приходится не более одного платежа.
type Payment struct {
	ID                string          `json:"id"`
	OrderID           string          `json:"orderId"`
	UserID            string          `json:"userId"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Status            PaymentStatus   `json:"status"`
	ProviderOrderID   string          `json:"providerOrderId"`
	ProviderPaymentID string          `json:"providerPaymentId,omitempty"` // Пустой, пока провайдер не подтвердил оплату.
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Validate проверяет корректность полей платежа.
func (p *Payment) Validate() error {
	switch {
	case p.OrderID == "":
		return NewValidationError("orderId", "is required")
	case p.Amount.IsNegative():
		return NewValidationError("amount", "must be non-negative")
	}
	return nil
}
