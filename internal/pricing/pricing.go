// Package pricing рассчитывает стоимость заказа на печать.
//
// Расчёт детерминирован и не делает I/O: тарифы, расстояние, сигнал нагрузки
// и момент времени приходят от вызывающего кода. Каждое промежуточное значение
// округляется до двух знаков в фиксированном порядке шагов, поэтому итог
// воспроизводится побайтно в любой реализации.
package pricing

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/campusprint/internal/domain"
)

const (
	// EarthRadiusKm задаёт радиус Земли для формулы гаверсинусов.
	EarthRadiusKm = 6371.0
	// Currency задаёт валюту всех расчётов.
	Currency = "INR"
)

var (
	platformFee           = decimal.NewFromInt(2)
	convenienceRate       = decimal.RequireFromString("0.05")
	gstRate               = decimal.RequireFromString("0.18")
	freeRadiusKm          = decimal.NewFromInt(2)
	distanceRatePerKm     = decimal.RequireFromString("0.05")
	maxDistanceMultiplier = decimal.RequireFromString("1.5")
	maxSurgeMultiplier    = decimal.NewFromInt(2)
	one                   = decimal.NewFromInt(1)
)

// Input содержит всё, что нужно для расчёта.
type Input struct {
	Rates        domain.Rates
	PrintConfig  domain.PrintConfig
	DistanceKm   float64
	RecentOrders int
	// At уже переведён в часовой пояс кампуса.
	At time.Time
}

// Breakdown описывает детализацию цены; не сохраняется.
type Breakdown struct {
	BaseCost           decimal.Decimal `json:"baseCost"`
	DistanceKm         decimal.Decimal `json:"distanceKm"`
	DistanceMultiplier decimal.Decimal `json:"distanceMultiplier"`
	SurgeMultiplier    decimal.Decimal `json:"surgeMultiplier"`
	SurgeReason        *string         `json:"surgeReason"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	PlatformFee        decimal.Decimal `json:"platformFee"`
	ConvenienceFee     decimal.Decimal `json:"convenienceFee"`
	GST                decimal.Decimal `json:"gst"`
	Total              decimal.Decimal `json:"total"`
	Currency           string          `json:"currency"`
}

// Calculate выполняет расчёт. Проверку pages/copies выполняет вызывающий.
func Calculate(in Input) Breakdown {
	base := BaseCost(in.Rates, in.PrintConfig)
	distanceKm := round2(decimal.NewFromFloat(in.DistanceKm))
	distanceMul := DistanceMultiplier(distanceKm)
	surge, reason := Surge(in.RecentOrders, in.At)

	subtotal := round2(base.Mul(distanceMul).Mul(surge))
	convenience := round2(subtotal.Mul(convenienceRate))
	gst := round2(platformFee.Add(convenience).Mul(gstRate))
	total := round2(subtotal.Add(platformFee).Add(convenience).Add(gst))

	return Breakdown{
		BaseCost:           base,
		DistanceKm:         distanceKm,
		DistanceMultiplier: distanceMul,
		SurgeMultiplier:    surge,
		SurgeReason:        reason,
		Subtotal:           subtotal,
		PlatformFee:        platformFee,
		ConvenienceFee:     convenience,
		GST:                gst,
		Total:              total,
		Currency:           Currency,
	}
}

// PerPageRate выбирает тариф по цветности и двусторонней печати.
func PerPageRate(rates domain.Rates, cfg domain.PrintConfig) decimal.Decimal {
	switch {
	case cfg.Color && cfg.DoubleSided:
		return rates.ColorDouble
	case cfg.Color:
		return rates.ColorSingle
	case cfg.DoubleSided:
		return rates.BWDouble
	default:
		return rates.BWSingle
	}
}

// BaseCost = тариф × страницы × копии (+ переплёт, один раз на заказ).
func BaseCost(rates domain.Rates, cfg domain.PrintConfig) decimal.Decimal {
	cost := PerPageRate(rates, cfg).
		Mul(decimal.NewFromInt(int64(cfg.Pages))).
		Mul(decimal.NewFromInt(int64(cfg.Copies)))
	if cfg.Binding {
		cost = cost.Add(rates.Binding)
	}
	return round2(cost)
}

// DistanceMultiplier: 1.0 в радиусе 2 км, далее +0.05 за км, но не выше 1.5.
func DistanceMultiplier(distanceKm decimal.Decimal) decimal.Decimal {
	if distanceKm.LessThanOrEqual(freeRadiusKm) {
		return one
	}
	mul := round2(one.Add(distanceKm.Sub(freeRadiusKm).Mul(distanceRatePerKm)))
	return decimal.Min(mul, maxDistanceMultiplier)
}

// Haversine возвращает расстояние по дуге большого круга в километрах.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
