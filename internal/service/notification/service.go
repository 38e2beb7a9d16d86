// Package notification подписывается на доменные события и превращает их
// в in-app уведомления, realtime-события и сообщения долговечных очередей.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/channel"
	"github.com/vladislavdragonenkov/campusprint/internal/domain"
	"github.com/vladislavdragonenkov/campusprint/internal/eventbus"
	"github.com/vladislavdragonenkov/campusprint/internal/messaging/queue"
	"github.com/vladislavdragonenkov/campusprint/internal/worker"
)

// Service подписан на шину событий.
type Service struct {
	users         domain.UserRepository
	shops         domain.ShopRepository
	notifications domain.NotificationRepository
	publisher     queue.Publisher
	emitter       domain.RealtimeEmitter
	logger        *log.Entry
	now           func() time.Time
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

// New создаёт сервис. Публикация идёт через SafePublisher: недоступность брокера
// не влияет на обработку события.
func New(
	users domain.UserRepository,
	shops domain.ShopRepository,
	notifications domain.NotificationRepository,
	publisher queue.Publisher,
	options ...Option,
) *Service {
	s := &Service{
		users:         users,
		shops:         shops,
		notifications: notifications,
		emitter:       domain.NopEmitter{},
		now:           time.Now,
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "notification-service")
	}
	if _, ok := publisher.(*queue.SafePublisher); !ok {
		publisher = queue.NewSafePublisher(publisher, queue.WithSafeLogger(s.logger))
	}
	s.publisher = publisher
	return s
}

// Subscribe подписывает сервис на все доменные события.
func (s *Service) Subscribe(bus *eventbus.Bus) func() {
	unsubscribes := make([]func(), 0, len(domain.AllEventTypes()))
	for _, eventType := range domain.AllEventTypes() {
		unsubscribes = append(unsubscribes, bus.Subscribe(eventType, s.HandleEvent))
	}
	return func() {
		for _, unsubscribe := range unsubscribes {
			unsubscribe()
		}
	}
}

// HandleEvent обрабатывает одно доменное событие.
func (s *Service) HandleEvent(ctx context.Context, event domain.Event) error {
	s.publishAnalytics(ctx, event)
	s.publishFileJob(ctx, event)

	summary, err := summarize(event.Payload)
	if err != nil {
		return err
	}

	stored := domain.Notification{
		ID:        uuid.NewString(),
		UserID:    summary.recipientID,
		OrderID:   summary.orderID,
		Type:      event.Type,
		Title:     summary.title,
		Message:   summary.message,
		CreatedAt: s.now().UTC(),
	}
	if err := s.notifications.Create(ctx, stored); err != nil {
		return fmt.Errorf("store notification for %s: %w", event.Type, err)
	}
	s.emitter.EmitToUser(stored.UserID, domain.RealtimeNotificationNew, stored)

	kind, ok := worker.KindFor(event.Type)
	if !ok {
		return fmt.Errorf("no notification kind for %s", event.Type)
	}
	payload := s.enrich(ctx, summary)
	s.publish(ctx, queue.Notifications, string(kind), payload)
	return nil
}

// enrich добавляет контакты получателя и название копицентра.
// Ошибки чтения не фатальны: worker пропустит каналы без контакта.
func (s *Service) enrich(ctx context.Context, summary eventSummary) worker.NotificationPayload {
	payload := worker.NotificationPayload{
		Recipient: channel.Recipient{UserID: summary.recipientID},
		OrderID:   summary.orderID,
		ShopID:    summary.shopID,
		ShopName:  summary.shopName,
		Amount:    summary.amount,
		Currency:  summary.currency,
		Reason:    summary.reason,
	}

	user, err := s.users.Get(ctx, summary.recipientID)
	switch {
	case err == nil:
		payload.Recipient.Name = user.Name
		payload.Recipient.Phone = user.Phone
		payload.Recipient.Email = user.Email
	case errors.Is(err, domain.ErrUserNotFound):
		s.logger.WithField("user_id", summary.recipientID).Debug("recipient has no profile")
	default:
		s.logger.WithError(err).WithField("user_id", summary.recipientID).Warn("failed to load recipient")
	}

	if payload.ShopName == "" && summary.shopID != "" {
		if shop, err := s.shops.Get(ctx, summary.shopID); err == nil {
			payload.ShopName = shop.Name
		}
	}
	return payload
}

func (s *Service) publishAnalytics(ctx context.Context, event domain.Event) {
	s.publish(ctx, queue.Analytics, string(event.Type), event.Payload)
}

func (s *Service) publishFileJob(ctx context.Context, event domain.Event) {
	created, ok := event.Payload.(domain.OrderCreatedPayload)
	if !ok || created.FileKey == "" {
		return
	}
	s.publish(ctx, queue.FileProcessing, worker.FileProcessingEvent, worker.FileJob{
		OrderID: created.OrderID,
		FileKey: created.FileKey,
		Pages:   created.PrintConfig.Pages,
	})
}

func (s *Service) publish(ctx context.Context, queueName, eventType string, payload any) {
	msg, err := queue.NewMessage(eventType, payload, s.now())
	if err != nil {
		s.logger.WithError(err).WithField("queue", queueName).Error("failed to build queue message")
		return
	}
	_ = s.publisher.Publish(ctx, queueName, msg)
}

// eventSummary содержит поля события, нужные для уведомления.
type eventSummary struct {
	recipientID string
	orderID     string
	shopID      string
	shopName    string
	amount      decimal.Decimal
	currency    string
	reason      string
	title       string
	message     string
}

func summarize(payload domain.EventPayload) (eventSummary, error) {
	switch p := payload.(type) {
	case domain.OrderCreatedPayload:
		return eventSummary{
			recipientID: p.UserID, orderID: p.OrderID, shopID: p.ShopID,
			amount: p.TotalCost, currency: p.Currency,
			title:   "Order placed",
			message: fmt.Sprintf("Your order #%s was placed. Total %s %s.", short(p.OrderID), p.Currency, p.TotalCost.StringFixed(2)),
		}, nil
	case domain.OrderConfirmedPayload:
		return eventSummary{
			recipientID: p.UserID, orderID: p.OrderID, shopID: p.ShopID,
			title:   "Order accepted",
			message: fmt.Sprintf("The shop accepted order #%s.", short(p.OrderID)),
		}, nil
	case domain.OrderReadyPayload:
		return eventSummary{
			recipientID: p.UserID, orderID: p.OrderID, shopID: p.ShopID,
			title:   "Ready for pickup",
			message: fmt.Sprintf("Order #%s is ready for pickup.", short(p.OrderID)),
		}, nil
	case domain.OrderCompletedPayload:
		return eventSummary{
			recipientID: p.UserID, orderID: p.OrderID, shopID: p.ShopID, amount: p.TotalCost,
			title:   "Order completed",
			message: fmt.Sprintf("Order #%s is complete.", short(p.OrderID)),
		}, nil
	case domain.OrderCancelledPayload:
		message := fmt.Sprintf("Order #%s was cancelled.", short(p.OrderID))
		if p.Reason != "" {
			message = fmt.Sprintf("Order #%s was cancelled: %s.", short(p.OrderID), p.Reason)
		}
		return eventSummary{
			recipientID: p.UserID, orderID: p.OrderID, shopID: p.ShopID, reason: p.Reason,
			title: "Order cancelled", message: message,
		}, nil
	case domain.PaymentSuccessPayload:
		return eventSummary{
			recipientID: p.UserID, orderID: p.OrderID, amount: p.Amount, currency: p.Currency,
			title:   "Payment received",
			message: fmt.Sprintf("Payment of %s %s for order #%s received.", p.Currency, p.Amount.StringFixed(2), short(p.OrderID)),
		}, nil
	case domain.PaymentFailedPayload:
		return eventSummary{
			recipientID: p.UserID, orderID: p.OrderID, amount: p.Amount, currency: p.Currency,
			title:   "Payment failed",
			message: fmt.Sprintf("Payment for order #%s failed. Please try again.", short(p.OrderID)),
		}, nil
	case domain.ShopRegisteredPayload:
		return eventSummary{
			recipientID: p.OwnerID, shopID: p.ShopID, shopName: p.Name,
			title:   "Shop registered",
			message: fmt.Sprintf("%s is now listed on CampusPrint.", p.Name),
		}, nil
	default:
		return eventSummary{}, fmt.Errorf("unsupported event payload %T", payload)
	}
}

func short(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
