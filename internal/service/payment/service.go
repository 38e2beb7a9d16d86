// Package payment ведёт платёж заказа: инициация у провайдера, подтверждение
// по callback и возврат. Сервис пишет только paymentStatus заказа.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/domain"
)

// maxOrderSaveAttempts ограничивает повторы при конфликте версий заказа.
const maxOrderSaveAttempts = 3

// Service управляет платежами.
type Service struct {
	payments  domain.PaymentRepository
	orders    domain.OrderRepository
	users     domain.UserRepository
	provider  domain.PaymentProvider
	publisher domain.EventPublisher
	emitter   domain.RealtimeEmitter
	logger    *log.Entry
	now       func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithEmitter задаёт realtime-шлюз.
func WithEmitter(emitter domain.RealtimeEmitter) Option {
	return func(s *Service) {
		s.emitter = emitter
	}
}

// New собирает платёжный сервис.
func New(
	payments domain.PaymentRepository,
	orders domain.OrderRepository,
	users domain.UserRepository,
	provider domain.PaymentProvider,
	publisher domain.EventPublisher,
	options ...Option,
) *Service {
	s := &Service{
		payments:  payments,
		orders:    orders,
		users:     users,
		provider:  provider,
		publisher: publisher,
		emitter:   domain.NopEmitter{},
		now:       time.Now,
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "payment-service")
	}
	return s
}

// ConfirmInput описывает результат оплаты от провайдера.
type ConfirmInput struct {
	ProviderOrderID   string
	ProviderPaymentID string
	Success           bool
}

// Initiate создаёт единственный платёж заказа. Повторный вызов возвращает
// существующий платёж, пока он в PENDING.
func (s *Service) Initiate(ctx context.Context, orderID, userID string) (domain.Payment, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if order.UserID != userID {
		return domain.Payment{}, &domain.AuthorizationError{ActorID: userID, OrderID: orderID}
	}
	if order.PaymentMethod != domain.PaymentMethodOnline {
		return domain.Payment{}, domain.NewValidationError("paymentMethod", "order is paid in cash")
	}
	if order.Status == domain.OrderStatusCancelled {
		return domain.Payment{}, domain.NewValidationError("status", "order is cancelled")
	}

	if existing, err := s.existingPending(ctx, orderID); !errors.Is(err, domain.ErrPaymentNotFound) {
		return existing, err
	}

	providerOrderID, err := s.provider.CreateOrder(ctx, order.ID, order.TotalCost, order.Currency)
	if err != nil {
		return domain.Payment{}, &domain.InfrastructureError{Op: "payment provider create order", Err: err}
	}

	now := s.now().UTC()
	payment := domain.Payment{
		ID:              uuid.NewString(),
		OrderID:         order.ID,
		UserID:          order.UserID,
		Amount:          order.TotalCost,
		Currency:        order.Currency,
		Status:          domain.PaymentStatusPending,
		ProviderOrderID: providerOrderID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := payment.Validate(); err != nil {
		return domain.Payment{}, err
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		if errors.Is(err, domain.ErrPaymentAlreadyExists) {
			return s.existingPending(ctx, orderID)
		}
		return domain.Payment{}, fmt.Errorf("create payment for order %s: %w", orderID, err)
	}

	s.logger.WithFields(log.Fields{
		"order_id":          order.ID,
		"payment_id":        payment.ID,
		"provider_order_id": providerOrderID,
	}).Info("payment initiated")
	return payment, nil
}

// Confirm фиксирует результат оплаты. Повторный callback с тем же исходом
// возвращает платёж; если прошлый вызов успел записать платёж, но не заказ,
// повтор доводит заказ и публикует событие.
func (s *Service) Confirm(ctx context.Context, in ConfirmInput) (domain.Payment, error) {
	if in.ProviderOrderID == "" {
		return domain.Payment{}, domain.NewValidationError("providerOrderId", "is required")
	}
	if in.Success && in.ProviderPaymentID == "" {
		return domain.Payment{}, domain.NewValidationError("providerPaymentId", "is required for successful payments")
	}

	payment, err := s.payments.GetByProviderOrder(ctx, in.ProviderOrderID)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("load payment %s: %w", in.ProviderOrderID, err)
	}

	target := domain.PaymentStatusFailed
	if in.Success {
		target = domain.PaymentStatusSuccess
	}
	if payment.Status != domain.PaymentStatusPending {
		return s.resumeSettled(ctx, payment, target)
	}

	payment.Status = target
	payment.ProviderPaymentID = in.ProviderPaymentID
	payment.UpdatedAt = s.now().UTC()
	if err := s.payments.Save(ctx, payment, domain.PaymentStatusPending); err != nil {
		if !errors.Is(err, domain.ErrPaymentAlreadySettled) {
			return domain.Payment{}, fmt.Errorf("save payment %s: %w", payment.ID, err)
		}
		// Параллельный callback записал платёж первым и сам доведёт заказ.
		settled, err := s.payments.GetByProviderOrder(ctx, in.ProviderOrderID)
		if err != nil {
			return domain.Payment{}, fmt.Errorf("load payment %s: %w", in.ProviderOrderID, err)
		}
		if settled.Status != target {
			return domain.Payment{}, fmt.Errorf("payment %s is %s: %w", settled.ID, settled.Status, domain.ErrPaymentAlreadySettled)
		}
		return settled, nil
	}
	if err := s.complete(ctx, payment); err != nil {
		return domain.Payment{}, err
	}
	return payment, nil
}

// resumeSettled обрабатывает callback по уже закрытому платежу.
func (s *Service) resumeSettled(ctx context.Context, payment domain.Payment, target domain.PaymentStatus) (domain.Payment, error) {
	if payment.Status != target {
		return domain.Payment{}, fmt.Errorf("payment %s is %s: %w", payment.ID, payment.Status, domain.ErrPaymentAlreadySettled)
	}
	order, err := s.orders.Get(ctx, payment.OrderID)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("load order %s: %w", payment.OrderID, err)
	}
	if order.PaymentStatus == target {
		return payment, nil
	}

	s.logger.WithFields(log.Fields{
		"order_id":   payment.OrderID,
		"payment_id": payment.ID,
		"status":     payment.Status,
	}).Warn("resume unfinished payment confirmation")
	if err := s.complete(ctx, payment); err != nil {
		return domain.Payment{}, err
	}
	return payment, nil
}

// complete переносит исход платежа в заказ и оповещает подписчиков. Событие
// публикует только тот вызов, который сменил paymentStatus заказа.
func (s *Service) complete(ctx context.Context, payment domain.Payment) error {
	changed, err := s.setOrderPaymentStatus(ctx, payment.OrderID, payment.Status)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	if payment.Status == domain.PaymentStatusSuccess {
		s.publisher.Publish(ctx, domain.PaymentSuccessPayload{
			PaymentID:         payment.ID,
			OrderID:           payment.OrderID,
			UserID:            payment.UserID,
			Amount:            payment.Amount,
			Currency:          payment.Currency,
			ProviderPaymentID: payment.ProviderPaymentID,
		})
		s.emitter.EmitToUser(payment.UserID, domain.RealtimePaymentCompleted, payment)
	} else {
		s.publisher.Publish(ctx, domain.PaymentFailedPayload{
			PaymentID: payment.ID,
			OrderID:   payment.OrderID,
			UserID:    payment.UserID,
			Amount:    payment.Amount,
			Currency:  payment.Currency,
		})
		s.emitter.EmitToUser(payment.UserID, domain.RealtimePaymentFailed, payment)
	}

	s.logger.WithFields(log.Fields{
		"order_id":   payment.OrderID,
		"payment_id": payment.ID,
		"status":     payment.Status,
	}).Info("payment confirmed")
	return nil
}

// Refund возвращает деньги по отменённому заказу. Доступно только администратору.
func (s *Service) Refund(ctx context.Context, orderID, actorID string) (domain.Payment, error) {
	actor, err := s.users.Get(ctx, actorID)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return domain.Payment{}, fmt.Errorf("load actor %s: %w", actorID, err)
	}
	if err != nil || !actor.IsAdmin() {
		return domain.Payment{}, &domain.AuthorizationError{ActorID: actorID, OrderID: orderID}
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("load order %s: %w", orderID, err)
	}
	payment, err := s.payments.GetByOrder(ctx, orderID)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("load payment of order %s: %w", orderID, err)
	}
	if order.Status != domain.OrderStatusCancelled || payment.Status != domain.PaymentStatusSuccess {
		return domain.Payment{}, fmt.Errorf("order %s is %s, payment is %s: %w",
			orderID, order.Status, payment.Status, domain.ErrPaymentNotRefundable)
	}

	if err := s.provider.Refund(ctx, payment.ProviderPaymentID, payment.Amount); err != nil {
		return domain.Payment{}, &domain.InfrastructureError{Op: "payment provider refund", Err: err}
	}

	payment.Status = domain.PaymentStatusRefunded
	payment.UpdatedAt = s.now().UTC()
	if err := s.payments.Save(ctx, payment, domain.PaymentStatusSuccess); err != nil {
		return domain.Payment{}, fmt.Errorf("save payment %s: %w", payment.ID, err)
	}
	if _, err := s.setOrderPaymentStatus(ctx, orderID, domain.PaymentStatusRefunded); err != nil {
		return domain.Payment{}, err
	}

	s.logger.WithFields(log.Fields{
		"order_id":   orderID,
		"payment_id": payment.ID,
		"amount":     payment.Amount.StringFixed(2),
	}).Info("payment refunded")
	return payment, nil
}

func (s *Service) existingPending(ctx context.Context, orderID string) (domain.Payment, error) {
	existing, err := s.payments.GetByOrder(ctx, orderID)
	if err != nil {
		return domain.Payment{}, err
	}
	if existing.Status != domain.PaymentStatusPending {
		return domain.Payment{}, fmt.Errorf("payment %s is %s: %w", existing.ID, existing.Status, domain.ErrPaymentAlreadySettled)
	}
	return existing, nil
}

// setOrderPaymentStatus перечитывает заказ при конфликте версий: статус заказа
// мог смениться параллельно, paymentStatus от этого не зависит. Возвращает false,
// если заказ уже нёс этот paymentStatus.
func (s *Service) setOrderPaymentStatus(ctx context.Context, orderID string, status domain.PaymentStatus) (bool, error) {
	var lastErr error
	for attempt := 0; attempt < maxOrderSaveAttempts; attempt++ {
		order, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return false, fmt.Errorf("load order %s: %w", orderID, err)
		}
		if order.PaymentStatus == status {
			return false, nil
		}
		order.PaymentStatus = status
		order.UpdatedAt = s.now().UTC()

		lastErr = s.orders.Save(ctx, order)
		if lastErr == nil {
			return true, nil
		}
		if !domain.IsVersionConflict(lastErr) {
			break
		}
	}
	return false, fmt.Errorf("update payment status of order %s: %w", orderID, lastErr)
}
