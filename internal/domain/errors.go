package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation: базовая ошибка некорректного входа (печать, координаты, тарифы).
	ErrValidation = errors.New("validation failed")
	// ErrForbidden: действие не разрешено для этого актора.
	ErrForbidden = errors.New("actor is not allowed to perform this action")
	// ErrInvalidTransition: переход статуса заказа не входит в таблицу переходов.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrInfrastructure: брокер или внешний провайдер недоступен.
	ErrInfrastructure = errors.New("infrastructure unavailable")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrShopNotFound возвращается, если копицентр не найден.
	ErrShopNotFound = errors.New("shop not found")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrPaymentNotFound возвращается, если по заказу нет платежа.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrOrderAlreadyExists: заказ с таким ID уже сохранён.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrShopAlreadyExists: копицентр с таким ID уже зарегистрирован.
	ErrShopAlreadyExists = errors.New("shop already exists")
	// ErrUserAlreadyExists: пользователь с таким ID уже существует.
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrPaymentAlreadyExists: у заказа уже есть платёж (не более одного на заказ).
	ErrPaymentAlreadyExists = errors.New("payment already exists for order")
	// ErrPaymentNotRefundable: возврат возможен только для успешного платежа отменённого заказа.
	ErrPaymentNotRefundable = errors.New("payment is not refundable")
	// ErrPaymentAlreadySettled: платёж уже подтверждён или отклонён.
	ErrPaymentAlreadySettled = errors.New("payment already settled")
)

// ValidationError описывает конкретное поле с некорректным значением.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is позволяет матчить ошибку через errors.Is(err, ErrValidation).
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError создаёт ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// AuthorizationError: актор не владелец копицентра и не администратор.
type AuthorizationError struct {
	ActorID string
	OrderID string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("actor %s is not allowed to change order %s", e.ActorID, e.OrderID)
}

func (e *AuthorizationError) Is(target error) bool {
	return target == ErrForbidden
}

// InvalidTransitionError содержит текущий и запрошенный статус для диагностики.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// InfrastructureError оборачивает сбой брокера или провайдера.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Is(target error) bool {
	return target == ErrInfrastructure
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsNotFound проверяет любую ошибку отсутствия сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrShopNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}
