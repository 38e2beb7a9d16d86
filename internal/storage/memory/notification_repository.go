package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/campusprint/internal/domain"
)

// notificationRepositoryInMemory хранит in-app уведомления в памяти (для разработки/тестов).
type notificationRepositoryInMemory struct {
	mu     sync.RWMutex
	byUser map[string][]domain.Notification
}

// NewNotificationRepository создаёт in-memory реализацию NotificationRepository.
func NewNotificationRepository() domain.NotificationRepository {
	return &notificationRepositoryInMemory{byUser: make(map[string][]domain.Notification)}
}

// Create добавляет уведомление пользователю.
func (r *notificationRepositoryInMemory) Create(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byUser[n.UserID] = append(r.byUser[n.UserID], n)
	return nil
}

// ListByUser возвращает уведомления пользователя, новые первыми.
func (r *notificationRepositoryInMemory) ListByUser(_ context.Context, userID string, limit int) ([]domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := r.byUser[userID]
	result := make([]domain.Notification, len(items))
	copy(result, items)

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ domain.NotificationRepository = (*notificationRepositoryInMemory)(nil)
