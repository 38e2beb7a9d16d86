package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/campusprint/internal/domain"
)

type shopRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Shop
}

// NewShopRepository возвращает in-memory репозиторий копицентров.
func NewShopRepository() domain.ShopRepository {
	return &shopRepositoryInMemory{items: make(map[string]domain.Shop)}
}

func (r *shopRepositoryInMemory) Create(_ context.Context, shop domain.Shop) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[shop.ID]; exists {
		return domain.ErrShopAlreadyExists
	}
	r.items[shop.ID] = shop
	return nil
}

func (r *shopRepositoryInMemory) Get(_ context.Context, id string) (domain.Shop, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	shop, ok := r.items[id]
	if !ok {
		return domain.Shop{}, domain.ErrShopNotFound
	}
	return shop, nil
}

type userRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.User
}

// NewUserRepository возвращает in-memory репозиторий пользователей.
func NewUserRepository() domain.UserRepository {
	return &userRepositoryInMemory{items: make(map[string]domain.User)}
}

func (r *userRepositoryInMemory) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[user.ID]; exists {
		return domain.ErrUserAlreadyExists
	}
	r.items[user.ID] = user
	return nil
}

func (r *userRepositoryInMemory) Get(_ context.Context, id string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.items[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

var (
	_ domain.ShopRepository = (*shopRepositoryInMemory)(nil)
	_ domain.UserRepository = (*userRepositoryInMemory)(nil)
)
