package domain

import "time"

// UserRole определяет права пользователя.
type UserRole string

const (
	UserRoleStudent   UserRole = "student"
	UserRoleShopOwner UserRole = "shop_owner"
	UserRoleAdmin     UserRole = "admin"
)

// User описывает участника маркетплейса. Контакты нужны каналам уведомлений.
type User struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Role      UserRole
	CreatedAt time.Time
}

// IsAdmin сообщает, может ли пользователь менять любой заказ.
func (u User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}

// Notification описывает in-app уведомление; пишется напрямую в хранилище до публикации в очередь.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	OrderID   string    `json:"orderId,omitempty"`
	Type      EventType `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}
