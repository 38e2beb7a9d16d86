// Package order реализует машину состояний заказа на печать.
//
// Сервис остаётся единственным писателем статуса заказа. Каждый успешный переход
// сохраняется одной версионированной записью и порождает ровно одно доменное
// событие; при ошибке событие не публикуется.
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/domain"
	"github.com/vladislavdragonenkov/campusprint/internal/metrics"
	"github.com/vladislavdragonenkov/campusprint/internal/pricing"
)

const (
	// RecentOrdersWindow задаёт окно сигнала нагрузки копицентра.
	RecentOrdersWindow = time.Hour

	defaultListLimit = 100
	maxListLimit     = 500
)

// Service управляет созданием заказов и переходами статусов.
type Service struct {
	orders    domain.OrderRepository
	shops     domain.ShopRepository
	users     domain.UserRepository
	publisher domain.EventPublisher
	emitter   domain.RealtimeEmitter
	metrics   *metrics.Metrics
	logger    *log.Entry
	now       func() time.Time
	location  *time.Location
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics задаёт набор метрик.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLocation задаёт часовой пояс кампуса для правил часа пик.
func WithLocation(location *time.Location) Option {
	return func(s *Service) {
		s.location = location
	}
}

// WithEmitter задаёт realtime-шлюз.
func WithEmitter(emitter domain.RealtimeEmitter) Option {
	return func(s *Service) {
		s.emitter = emitter
	}
}

// New собирает сервис заказов.
func New(
	orders domain.OrderRepository,
	shops domain.ShopRepository,
	users domain.UserRepository,
	publisher domain.EventPublisher,
	options ...Option,
) *Service {
	s := &Service{
		orders:    orders,
		shops:     shops,
		users:     users,
		publisher: publisher,
		emitter:   domain.NopEmitter{},
		now:       time.Now,
		location:  time.UTC,
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "order-service")
	}
	if s.metrics == nil {
		s.metrics = metrics.Default()
	}
	return s
}

// QuoteInput описывает запрос расчёта цены.
type QuoteInput struct {
	ShopID      string
	UserLat     float64
	UserLng     float64
	PrintConfig domain.PrintConfig
}

// CreateInput описывает запрос на создание заказа.
type CreateInput struct {
	UserID        string
	ShopID        string
	UserLat       float64
	UserLng       float64
	PrintConfig   domain.PrintConfig
	PaymentMethod domain.PaymentMethod
	FileKey       string
}

// UpdateStatusInput описывает запрос на смену статуса.
type UpdateStatusInput struct {
	OrderID      string
	TargetStatus domain.OrderStatus
	ActorID      string
	Reason       string
}

// StatusChange содержит данные realtime-события order:statusChanged.
type StatusChange struct {
	OrderID        string             `json:"orderId"`
	Status         domain.OrderStatus `json:"status"`
	PreviousStatus domain.OrderStatus `json:"previousStatus"`
	Order          domain.Order       `json:"order"`
}

// Quote рассчитывает цену без сохранения.
func (s *Service) Quote(ctx context.Context, in QuoteInput) (pricing.Breakdown, error) {
	if err := validateQuote(in.ShopID, in.UserLat, in.UserLng, in.PrintConfig); err != nil {
		return pricing.Breakdown{}, err
	}
	shop, err := s.shops.Get(ctx, in.ShopID)
	if err != nil {
		return pricing.Breakdown{}, fmt.Errorf("load shop %s: %w", in.ShopID, err)
	}
	return s.price(ctx, shop, in.UserLat, in.UserLng, in.PrintConfig)
}

// Create рассчитывает цену, сохраняет заказ в PENDING и публикует order.created.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Order, pricing.Breakdown, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return domain.Order{}, pricing.Breakdown{}, domain.NewValidationError("userId", "is required")
	}
	if err := validateQuote(in.ShopID, in.UserLat, in.UserLng, in.PrintConfig); err != nil {
		return domain.Order{}, pricing.Breakdown{}, err
	}
	method := in.PaymentMethod
	switch method {
	case "":
		method = domain.PaymentMethodOnline
	case domain.PaymentMethodOnline, domain.PaymentMethodCash:
	default:
		return domain.Order{}, pricing.Breakdown{}, domain.NewValidationError("paymentMethod", fmt.Sprintf("unsupported payment method %q", in.PaymentMethod))
	}

	shop, err := s.shops.Get(ctx, in.ShopID)
	if err != nil {
		return domain.Order{}, pricing.Breakdown{}, fmt.Errorf("load shop %s: %w", in.ShopID, err)
	}
	breakdown, err := s.price(ctx, shop, in.UserLat, in.UserLng, in.PrintConfig)
	if err != nil {
		return domain.Order{}, pricing.Breakdown{}, err
	}

	now := s.now().UTC()
	order := domain.Order{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		ShopID:        shop.ID,
		Status:        domain.OrderStatusPending,
		PrintConfig:   in.PrintConfig,
		FileKey:       in.FileKey,
		TotalCost:     breakdown.Total,
		Currency:      breakdown.Currency,
		PaymentMethod: method,
		PaymentStatus: domain.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return domain.Order{}, pricing.Breakdown{}, fmt.Errorf("create order: %w", err)
	}
	s.metrics.RecordOrderCreated()

	s.publisher.Publish(ctx, domain.OrderCreatedPayload{
		OrderID:       order.ID,
		UserID:        order.UserID,
		ShopID:        order.ShopID,
		TotalCost:     order.TotalCost,
		Currency:      order.Currency,
		PrintConfig:   order.PrintConfig,
		PaymentMethod: order.PaymentMethod,
		FileKey:       order.FileKey,
	})
	s.emitter.EmitToUser(order.UserID, domain.RealtimeOrderCreated, order)
	s.emitter.EmitToShop(order.ShopID, domain.RealtimeOrderCreated, order)

	s.logger.WithFields(log.Fields{
		"order_id":   order.ID,
		"shop_id":    order.ShopID,
		"total_cost": order.TotalCost.StringFixed(2),
	}).Info("order created")

	return order, breakdown, nil
}

// UpdateStatus выполняет переход статуса от имени актора.
func (s *Service) UpdateStatus(ctx context.Context, in UpdateStatusInput) (domain.Order, error) {
	if in.OrderID == "" {
		return domain.Order{}, domain.NewValidationError("orderId", "is required")
	}

	order, err := s.orders.Get(ctx, in.OrderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load order %s: %w", in.OrderID, err)
	}
	from := order.Status

	if err := s.authorize(ctx, order, in.ActorID); err != nil {
		s.metrics.RecordTransition(string(from), string(in.TargetStatus), "forbidden")
		return domain.Order{}, err
	}
	if !domain.CanTransition(from, in.TargetStatus) {
		s.metrics.RecordTransition(string(from), string(in.TargetStatus), "invalid")
		return domain.Order{}, &domain.InvalidTransitionError{From: from, To: in.TargetStatus}
	}

	order.Status = in.TargetStatus
	order.UpdatedAt = s.now().UTC()
	if in.TargetStatus == domain.OrderStatusCancelled {
		order.CancelReason = strings.TrimSpace(in.Reason)
	}

	if err := s.orders.Save(ctx, order); err != nil {
		result := "error"
		if domain.IsVersionConflict(err) {
			result = "conflict"
		}
		s.metrics.RecordTransition(string(from), string(in.TargetStatus), result)
		return domain.Order{}, fmt.Errorf("save order %s: %w", order.ID, err)
	}
	order.Version++
	s.metrics.RecordTransition(string(from), string(in.TargetStatus), "ok")

	if payload, ok := transitionPayload(order); ok {
		s.publisher.Publish(ctx, payload)
	}
	change := StatusChange{OrderID: order.ID, Status: order.Status, PreviousStatus: from, Order: order}
	s.emitter.EmitToUser(order.UserID, domain.RealtimeOrderStatusChanged, change)
	s.emitter.EmitToShop(order.ShopID, domain.RealtimeOrderStatusChanged, change)

	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"from":     from,
		"to":       order.Status,
		"actor_id": in.ActorID,
	}).Info("order status changed")

	return order, nil
}

// Get возвращает заказ по идентификатору.
func (s *Service) Get(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load order %s: %w", orderID, err)
	}
	return order, nil
}

// ListByUser возвращает заказы студента, новые первыми.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list orders of user %s: %w", userID, err)
	}
	return orders, nil
}

// ListByShop возвращает заказы копицентра, новые первыми.
func (s *Service) ListByShop(ctx context.Context, shopID string, limit int) ([]domain.Order, error) {
	orders, err := s.orders.ListByShop(ctx, shopID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list orders of shop %s: %w", shopID, err)
	}
	return orders, nil
}

// CanManageShop сообщает, может ли актор управлять заказами копицентра.
func (s *Service) CanManageShop(ctx context.Context, shopID, actorID string) (bool, error) {
	shop, err := s.shops.Get(ctx, shopID)
	if err != nil {
		return false, fmt.Errorf("load shop %s: %w", shopID, err)
	}
	if shop.OwnerID == actorID {
		return true, nil
	}
	return s.isAdmin(ctx, actorID)
}

func (s *Service) authorize(ctx context.Context, order domain.Order, actorID string) error {
	if actorID != "" {
		shop, err := s.shops.Get(ctx, order.ShopID)
		switch {
		case err == nil && shop.OwnerID == actorID:
			return nil
		case err != nil && !errors.Is(err, domain.ErrShopNotFound):
			return fmt.Errorf("load shop %s: %w", order.ShopID, err)
		}
		admin, err := s.isAdmin(ctx, actorID)
		if err != nil {
			return err
		}
		if admin {
			return nil
		}
	}
	return &domain.AuthorizationError{ActorID: actorID, OrderID: order.ID}
}

func (s *Service) isAdmin(ctx context.Context, actorID string) (bool, error) {
	user, err := s.users.Get(ctx, actorID)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("load actor %s: %w", actorID, err)
	}
	return user.IsAdmin(), nil
}

func (s *Service) price(ctx context.Context, shop domain.Shop, userLat, userLng float64, cfg domain.PrintConfig) (pricing.Breakdown, error) {
	now := s.now()
	recent, err := s.orders.CountRecentByShop(ctx, shop.ID, now.Add(-RecentOrdersWindow).UTC(), domain.ActiveOrderStatuses)
	if err != nil {
		return pricing.Breakdown{}, fmt.Errorf("count recent orders of shop %s: %w", shop.ID, err)
	}

	breakdown := pricing.Calculate(pricing.Input{
		Rates:        shop.Rates,
		PrintConfig:  cfg,
		DistanceKm:   pricing.Haversine(userLat, userLng, shop.Lat, shop.Lng),
		RecentOrders: recent,
		At:           now.In(s.location),
	})
	s.metrics.RecordPricingQuote(breakdown.SurgeReason != nil)
	return breakdown, nil
}

func transitionPayload(order domain.Order) (domain.EventPayload, bool) {
	eventType, ok := domain.TransitionEvent(order.Status)
	if !ok {
		return nil, false
	}
	switch eventType {
	case domain.EventOrderConfirmed:
		return domain.OrderConfirmedPayload{OrderID: order.ID, UserID: order.UserID, ShopID: order.ShopID}, true
	case domain.EventOrderReady:
		return domain.OrderReadyPayload{OrderID: order.ID, UserID: order.UserID, ShopID: order.ShopID}, true
	case domain.EventOrderCompleted:
		return domain.OrderCompletedPayload{
			OrderID: order.ID, UserID: order.UserID, ShopID: order.ShopID, TotalCost: order.TotalCost,
		}, true
	case domain.EventOrderCancelled:
		return domain.OrderCancelledPayload{
			OrderID: order.ID, UserID: order.UserID, ShopID: order.ShopID, Reason: order.CancelReason,
		}, true
	}
	return nil, false
}

func validateQuote(shopID string, lat, lng float64, cfg domain.PrintConfig) error {
	if shopID == "" {
		return domain.NewValidationError("shopId", "is required")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return domain.ValidateCoordinates(lat, lng)
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	}
	return limit
}
