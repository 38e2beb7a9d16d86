package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/campusprint/internal/domain"
)

// paymentRepositoryInMemory индексирует платежи по заказу; на заказ один платёж.
type paymentRepositoryInMemory struct {
	mu      sync.RWMutex
	byOrder map[string]domain.Payment
}

// NewPaymentRepository возвращает in-memory репозиторий платежей.
func NewPaymentRepository() domain.PaymentRepository {
	return &paymentRepositoryInMemory{byOrder: make(map[string]domain.Payment)}
}

func (r *paymentRepositoryInMemory) Create(_ context.Context, payment domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byOrder[payment.OrderID]; exists {
		return domain.ErrPaymentAlreadyExists
	}
	r.byOrder[payment.OrderID] = payment
	return nil
}

func (r *paymentRepositoryInMemory) GetByOrder(_ context.Context, orderID string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payment, ok := r.byOrder[orderID]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return payment, nil
}

func (r *paymentRepositoryInMemory) GetByProviderOrder(_ context.Context, providerOrderID string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, payment := range r.byOrder {
		if payment.ProviderOrderID == providerOrderID {
			return payment, nil
		}
	}
	return domain.Payment{}, domain.ErrPaymentNotFound
}

func (r *paymentRepositoryInMemory) Save(_ context.Context, payment domain.Payment, from domain.PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byOrder[payment.OrderID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	if current.Status != from {
		return domain.ErrPaymentAlreadySettled
	}
	r.byOrder[payment.OrderID] = payment
	return nil
}

var _ domain.PaymentRepository = (*paymentRepositoryInMemory)(nil)
