// Package httpapi реализует JSON REST API поверх сервисов заказов, платежей и копицентров.
package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/auth"
	"github.com/vladislavdragonenkov/campusprint/internal/domain"
	"github.com/vladislavdragonenkov/campusprint/internal/pricing"
	"github.com/vladislavdragonenkov/campusprint/internal/service/order"
	"github.com/vladislavdragonenkov/campusprint/internal/service/payment"
	"github.com/vladislavdragonenkov/campusprint/internal/service/shop"
)

// OrderService описывает операции машины состояний заказа.
type OrderService interface {
	Quote(ctx context.Context, in order.QuoteInput) (pricing.Breakdown, error)
	Create(ctx context.Context, in order.CreateInput) (domain.Order, pricing.Breakdown, error)
	UpdateStatus(ctx context.Context, in order.UpdateStatusInput) (domain.Order, error)
	Get(ctx context.Context, orderID string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error)
	ListByShop(ctx context.Context, shopID string, limit int) ([]domain.Order, error)
	CanManageShop(ctx context.Context, shopID, actorID string) (bool, error)
}

// PaymentService описывает операции с платежами.
type PaymentService interface {
	Initiate(ctx context.Context, orderID, userID string) (domain.Payment, error)
	Confirm(ctx context.Context, in payment.ConfirmInput) (domain.Payment, error)
	Refund(ctx context.Context, orderID, actorID string) (domain.Payment, error)
}

// ShopService регистрирует копицентры.
type ShopService interface {
	Register(ctx context.Context, in shop.RegisterInput) (domain.Shop, error)
}

// NotificationReader читает in-app уведомления.
type NotificationReader interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
}

// Authenticator извлекает пользователя из запроса.
type Authenticator interface {
	FromRequest(r *http.Request) (auth.Principal, error)
}

// Server собирает маршруты API.
type Server struct {
	orders         OrderService
	payments       PaymentService
	shops          ShopService
	notifications  NotificationReader
	authenticator  Authenticator
	realtime       http.Handler
	callbackSecret string
	logger         *log.Entry
}

// Option настраивает Server.
type Option func(*Server)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRealtime подключает websocket-шлюз на /ws.
func WithRealtime(handler http.Handler) Option {
	return func(s *Server) {
		s.realtime = handler
	}
}

// WithCallbackSecret требует заголовок X-Callback-Secret у callback провайдера.
func WithCallbackSecret(secret string) Option {
	return func(s *Server) {
		s.callbackSecret = secret
	}
}

// NewServer создаёт API.
func NewServer(
	orders OrderService,
	payments PaymentService,
	shops ShopService,
	notifications NotificationReader,
	authenticator Authenticator,
	options ...Option,
) *Server {
	s := &Server{
		orders:        orders,
		payments:      payments,
		shops:         shops,
		notifications: notifications,
		authenticator: authenticator,
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "httpapi")
	}
	return s
}

// Handler возвращает корневой обработчик со всеми маршрутами.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /api/v1/pricing/quote", s.authenticated(s.handleQuote))
	mux.Handle("POST /api/v1/orders", s.authenticated(s.handleCreateOrder))
	mux.Handle("GET /api/v1/orders", s.authenticated(s.handleListOrders))
	mux.Handle("GET /api/v1/orders/{id}", s.authenticated(s.handleGetOrder))
	mux.Handle("PATCH /api/v1/orders/{id}/status", s.authenticated(s.handleUpdateStatus))
	mux.Handle("POST /api/v1/orders/{id}/payments", s.authenticated(s.handleInitiatePayment))
	mux.Handle("POST /api/v1/orders/{id}/refund", s.authenticated(s.handleRefund))
	mux.HandleFunc("POST /api/v1/payments/callback", s.handlePaymentCallback)
	mux.Handle("POST /api/v1/shops", s.authenticated(s.handleRegisterShop))
	mux.Handle("GET /api/v1/notifications", s.authenticated(s.handleListNotifications))
	if s.realtime != nil {
		mux.Handle("GET /ws", s.realtime)
	}

	return s.recoverer(s.accessLog(mux))
}

// authenticated проверяет токен и кладёт Principal в контекст.
func (s *Server) authenticated(next func(w http.ResponseWriter, r *http.Request, p auth.Principal)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := s.authenticator.FromRequest(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)), principal)
	})
}

func (s *Server) callbackAllowed(r *http.Request) bool {
	if s.callbackSecret == "" {
		return true
	}
	got := r.Header.Get("X-Callback-Secret")
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.callbackSecret)) == 1
}
