// Package shop регистрирует копицентры.
package shop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/domain"
)

// Service регистрирует копицентры и публикует shop.registered.
type Service struct {
	shops     domain.ShopRepository
	publisher domain.EventPublisher
	logger    *log.Entry
	now       func() time.Time
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

// New собирает сервис.
func New(shops domain.ShopRepository, publisher domain.EventPublisher, options ...Option) *Service {
	s := &Service{shops: shops, publisher: publisher, now: time.Now}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "shop-service")
	}
	return s
}

// RegisterInput содержит данные нового копицентра.
type RegisterInput struct {
	OwnerID string
	Name    string
	Lat     float64
	Lng     float64
	Rates   domain.Rates
	Phone   string
	Email   string
}

// Register проверяет тарифы и координаты, сохраняет копицентр и публикует событие.
func (s *Service) Register(ctx context.Context, in RegisterInput) (domain.Shop, error) {
	shop := domain.Shop{
		ID:        uuid.NewString(),
		OwnerID:   in.OwnerID,
		Name:      strings.TrimSpace(in.Name),
		Lat:       in.Lat,
		Lng:       in.Lng,
		Rates:     in.Rates,
		Phone:     strings.TrimSpace(in.Phone),
		Email:     strings.TrimSpace(in.Email),
		CreatedAt: s.now().UTC(),
	}
	if err := shop.Validate(); err != nil {
		return domain.Shop{}, err
	}
	if err := s.shops.Create(ctx, shop); err != nil {
		return domain.Shop{}, fmt.Errorf("create shop: %w", err)
	}

	s.publisher.Publish(ctx, domain.ShopRegisteredPayload{
		ShopID:  shop.ID,
		OwnerID: shop.OwnerID,
		Name:    shop.Name,
	})
	s.logger.WithFields(log.Fields{"shop_id": shop.ID, "owner_id": shop.OwnerID}).Info("shop registered")
	return shop, nil
}

// Get возвращает копицентр.
func (s *Service) Get(ctx context.Context, shopID string) (domain.Shop, error) {
	shop, err := s.shops.Get(ctx, shopID)
	if err != nil {
		return domain.Shop{}, fmt.Errorf("load shop %s: %w", shopID, err)
	}
	return shop, nil
}
