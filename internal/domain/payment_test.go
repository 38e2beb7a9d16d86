package domain_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/campusprint/internal/domain"
)

func TestPaymentValidate(t *testing.T) {
	ok := domain.Payment{OrderID: "order-1", Amount: decimal.RequireFromString("44.72")}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	missingOrder := domain.Payment{Amount: decimal.NewFromInt(10)}
	if err := missingOrder.Validate(); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	negative := domain.Payment{OrderID: "order-1", Amount: decimal.NewFromInt(-1)}
	if err := negative.Validate(); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestShopValidate(t *testing.T) {
	shop := domain.Shop{
		Name:    "Campus Copy",
		OwnerID: "owner-1",
		Lat:     12.97,
		Lng:     77.59,
		Rates:   domain.Rates{BWSingle: decimal.NewFromInt(2)},
	}
	if err := shop.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	shop.Rates.ColorDouble = decimal.NewFromInt(-5)
	err := shop.Validate()
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != "rates.colorDouble" {
		t.Fatalf("expected rates.colorDouble validation error, got %v", err)
	}
}

func TestEventTypeValid(t *testing.T) {
	for _, et := range domain.AllEventTypes() {
		if !et.Valid() {
			t.Errorf("%s should be valid", et)
		}
	}
	if domain.EventType("order.shipped").Valid() {
		t.Error("unknown event type must be invalid")
	}
}
