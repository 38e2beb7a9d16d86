package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Rates содержит тарифы копицентра за страницу и фиксированная плата за переплёт.
type Rates struct {
	BWSingle    decimal.Decimal `json:"bwSingle"`
	BWDouble    decimal.Decimal `json:"bwDouble"`
	ColorSingle decimal.Decimal `json:"colorSingle"`
	ColorDouble decimal.Decimal `json:"colorDouble"`
	Binding     decimal.Decimal `json:"binding"`
}

// Validate отклоняет отрицательные тарифы.
func (r Rates) Validate() error {
	fields := []struct {
		name  string
		value decimal.Decimal
	}{
		{"rates.bwSingle", r.BWSingle},
		{"rates.bwDouble", r.BWDouble},
		{"rates.colorSingle", r.ColorSingle},
		{"rates.colorDouble", r.ColorDouble},
		{"rates.binding", r.Binding},
	}
	for _, f := range fields {
		if f.value.IsNegative() {
			return NewValidationError(f.name, "must be non-negative")
		}
	}
	return nil
}

// Shop описывает копицентр на кампусе.
type Shop struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Name      string    `json:"name"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Rates     Rates     `json:"rates"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate проверяет обязательные поля копицентра.
func (s *Shop) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return NewValidationError("name", "is required")
	}
	if s.OwnerID == "" {
		return NewValidationError("ownerId", "is required")
	}
	if err := ValidateCoordinates(s.Lat, s.Lng); err != nil {
		return err
	}
	return s.Rates.Validate()
}
