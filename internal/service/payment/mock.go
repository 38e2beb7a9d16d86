package payment

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/campusprint/internal/domain"
)

// MockProvider: конфигурируемая заглушка платёжного провайдера.
// Используется в тестах и в локальном запуске без реального шлюза.
type MockProvider struct {
	mu sync.Mutex

	CreateErr error
	RefundErr error

	CreateCalls int
	RefundCalls int
	Refunded    map[string]decimal.Decimal
}

// NewMockProvider возвращает mock с успешным сценарием по умолчанию.
func NewMockProvider() *MockProvider {
	return &MockProvider{Refunded: make(map[string]decimal.Decimal)}
}

// CreateOrder выдаёт идентификатор вида mock_order_<uuid> и считает вызовы.
func (m *MockProvider) CreateOrder(_ context.Context, _ string, _ decimal.Decimal, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	return "mock_order_" + uuid.NewString(), nil
}

// Refund запоминает сумму возврата и считает вызовы.
func (m *MockProvider) Refund(_ context.Context, providerPaymentID string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RefundCalls++
	if m.RefundErr != nil {
		return m.RefundErr
	}
	m.Refunded[providerPaymentID] = amount
	return nil
}

var _ domain.PaymentProvider = (*MockProvider)(nil)
