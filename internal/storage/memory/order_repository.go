package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/campusprint/internal/domain"
)

// orderRepositoryInMemory хранит заказы в памяти.
type orderRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Order
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items: make(map[string]domain.Order),
	}
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrOrderAlreadyExists
	}
	r.items[order.ID] = order
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (r *orderRepositoryInMemory) ListByUser(_ context.Context, userID string, limit int) ([]domain.Order, error) {
	return r.list(func(o domain.Order) bool { return o.UserID == userID }, limit), nil
}

func (r *orderRepositoryInMemory) ListByShop(_ context.Context, shopID string, limit int) ([]domain.Order, error) {
	return r.list(func(o domain.Order) bool { return o.ShopID == shopID }, limit), nil
}

// list возвращает заказы по фильтру, новые первыми, ограничивая выборку limit (если >0).
func (r *orderRepositoryInMemory) list(match func(domain.Order) bool, limit int) []domain.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if !match(order) {
			continue
		}
		result = append(result, order)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// CountRecentByShop считает активные заказы копицентра за окно.
func (r *orderRepositoryInMemory) CountRecentByShop(_ context.Context, shopID string, since time.Time, statuses []domain.OrderStatus) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[domain.OrderStatus]struct{}, len(statuses))
	for _, s := range statuses {
		wanted[s] = struct{}{}
	}

	count := 0
	for _, order := range r.items {
		if order.ShopID != shopID || order.CreatedAt.Before(since) {
			continue
		}
		if _, ok := wanted[order.Status]; ok {
			count++
		}
	}
	return count, nil
}

// Save перезаписывает изменяемые поля заказа, проверяя версию (optimistic locking).
func (r *orderRepositoryInMemory) Save(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}

	current.Status = order.Status
	current.PaymentStatus = order.PaymentStatus
	current.CancelReason = order.CancelReason
	current.UpdatedAt = order.UpdatedAt
	current.Version++
	r.items[order.ID] = current
	return nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
