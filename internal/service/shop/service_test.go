package shop_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/campusprint/internal/domain"
	"github.com/vladislavdragonenkov/campusprint/internal/service/shop"
	"github.com/vladislavdragonenkov/campusprint/internal/storage/memory"
)

type recordingPublisher struct {
	payloads []domain.EventPayload
}

func (p *recordingPublisher) Publish(_ context.Context, payload domain.EventPayload) domain.Event {
	p.payloads = append(p.payloads, payload)
	return domain.Event{Type: payload.EventType(), Payload: payload}
}

func validInput() shop.RegisterInput {
	return shop.RegisterInput{
		OwnerID: "owner-1",
		Name:    "  Campus Copy ",
		Lat:     12.97,
		Lng:     77.59,
		Rates: domain.Rates{
			BWSingle:    decimal.RequireFromString("1.00"),
			BWDouble:    decimal.RequireFromString("1.50"),
			ColorSingle: decimal.RequireFromString("5.00"),
			ColorDouble: decimal.RequireFromString("8.00"),
			Binding:     decimal.RequireFromString("25.00"),
		},
	}
}

func TestRegister(t *testing.T) {
	repo := memory.NewShopRepository()
	publisher := &recordingPublisher{}
	service := shop.New(repo, publisher)

	registered, err := service.Register(context.Background(), validInput())
	require.NoError(t, err)
	assert.NotEmpty(t, registered.ID)
	assert.Equal(t, "Campus Copy", registered.Name)

	stored, err := service.Get(context.Background(), registered.ID)
	require.NoError(t, err)
	assert.Equal(t, registered.OwnerID, stored.OwnerID)

	require.Len(t, publisher.payloads, 1)
	assert.Equal(t, domain.ShopRegisteredPayload{
		ShopID: registered.ID, OwnerID: "owner-1", Name: "Campus Copy",
	}, publisher.payloads[0])
}

func TestRegister_Validation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*shop.RegisterInput)
		field  string
	}{
		{"blank name", func(in *shop.RegisterInput) { in.Name = " " }, "name"},
		{"no owner", func(in *shop.RegisterInput) { in.OwnerID = "" }, "ownerId"},
		{"latitude", func(in *shop.RegisterInput) { in.Lat = -91 }, "lat"},
		{"longitude", func(in *shop.RegisterInput) { in.Lng = 181 }, "lng"},
		{"negative rate", func(in *shop.RegisterInput) { in.Rates.ColorDouble = decimal.RequireFromString("-0.01") }, "rates.colorDouble"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			publisher := &recordingPublisher{}
			service := shop.New(memory.NewShopRepository(), publisher)
			in := validInput()
			tc.mutate(&in)

			_, err := service.Register(context.Background(), in)
			var validation *domain.ValidationError
			require.ErrorAs(t, err, &validation)
			assert.Equal(t, tc.field, validation.Field)
			assert.Empty(t, publisher.payloads)
		})
	}
}

func TestGet_NotFound(t *testing.T) {
	service := shop.New(memory.NewShopRepository(), &recordingPublisher{})
	_, err := service.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrShopNotFound)
}
