// Package channel содержит адаптеры каналов доставки уведомлений (SMS, email, push).
//
// Сбой провайдера не считается ошибкой обработки сообщения: адаптер логирует его
// и возвращает Result{Success: false}. Сообщение очереди при этом подтверждается.
package channel

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Name задаёт имя канала доставки.
type Name string

const (
	SMS   Name = "sms"
	Email Name = "email"
	Push  Name = "push"
)

// Result описывает итог доставки по одному каналу.
type Result struct {
	Channel Name   `json:"channel"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// DeliveryError описывает сбой провайдера канала.
type DeliveryError struct {
	Channel   Name
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery to %s failed: %v", e.Channel, e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func failed(name Name, recipient string, err error) (Result, *DeliveryError) {
	derr := &DeliveryError{Channel: name, Recipient: recipient, Err: err}
	return Result{Channel: name, Success: false, Error: derr.Error()}, derr
}

// Recipient содержит контакты получателя уведомления.
type Recipient struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Phone  string `json:"phone,omitempty"`
	Email  string `json:"email,omitempty"`
}

// TemplateData содержит данные для подстановки в шаблоны.
type TemplateData struct {
	Name     string
	OrderID  string
	ShopName string
	Amount   decimal.Decimal
	Currency string
	Reason   string
}

// ShortOrderID возвращает первые 8 символов идентификатора заказа для коротких сообщений.
func (d TemplateData) ShortOrderID() string {
	if len(d.OrderID) <= 8 {
		return d.OrderID
	}
	return d.OrderID[:8]
}

// FormattedAmount возвращает сумму с двумя знаками после запятой и валютой.
func (d TemplateData) FormattedAmount() string {
	if d.Currency == "" {
		return d.Amount.StringFixed(2)
	}
	return d.Currency + " " + d.Amount.StringFixed(2)
}
