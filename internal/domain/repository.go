package domain

import (
	"context"
	"time"
)

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. ErrOrderAlreadyExists, если ID занят.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// ListByUser возвращает заказы студента, новые первыми; limit<=0 снимает ограничение.
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	// ListByShop возвращает заказы копицентра, новые первыми.
	ListByShop(ctx context.Context, shopID string, limit int) ([]Order, error)
	// CountRecentByShop считает заказы копицентра в указанных статусах, созданные не раньше since.
	CountRecentByShop(ctx context.Context, shopID string, since time.Time, statuses []OrderStatus) (int, error)
	// Save обновляет изменяемые поля (статус, оплата, причина отмены) с учётом optimistic locking.
	// TotalCost никогда не перезаписывается.
	Save(ctx context.Context, order Order) error
}

// ShopRepository хранит копицентры.
type ShopRepository interface {
	Create(ctx context.Context, shop Shop) error
	Get(ctx context.Context, id string) (Shop, error)
}

// UserRepository хранит пользователей.
type UserRepository interface {
	Create(ctx context.Context, user User) error
	Get(ctx context.Context, id string) (User, error)
}

// PaymentRepository хранит платежи (один на заказ).
type PaymentRepository interface {
	// Create возвращает ErrPaymentAlreadyExists, если по заказу уже есть платёж.
	Create(ctx context.Context, payment Payment) error
	GetByOrder(ctx context.Context, orderID string) (Payment, error)
	GetByProviderOrder(ctx context.Context, providerOrderID string) (Payment, error)
	// Save пишет платёж, только если сохранённый статус равен from; иначе
	// возвращает ErrPaymentAlreadySettled.
	Save(ctx context.Context, payment Payment, from PaymentStatus) error
}

// NotificationRepository хранит in-app уведомления.
type NotificationRepository interface {
	Create(ctx context.Context, notification Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]Notification, error)
}
