package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	LabelVeryHighDemand = "Very high demand"
	LabelHighDemand     = "High demand"
	LabelModerateDemand = "Moderate demand"
	LabelPeakHours      = "Peak hours"
)

// surgeSignal содержит входы правил надбавки.
type surgeSignal struct {
	recentOrders int
	at           time.Time
}

// surgeBonus описывает результат одного правила. label пустой у правил без собственной метки.
type surgeBonus struct {
	amount decimal.Decimal
	label  string
	tier   bool
}

// surgeRule возвращает ok=false, если правило не сработало.
type surgeRule func(s surgeSignal) (surgeBonus, bool)

// surgeRules вычисляются строго по порядку: уровень спроса, час пик, будний час пик.
// Надбавки суммируются, ограничение 2.0 применяется один раз в конце.
var surgeRules = []surgeRule{
	demandTierRule,
	peakHoursRule,
	weekdayPeakRule,
}

type demandTier struct {
	minOrders int
	bonus     decimal.Decimal
	label     string
}

// demandTiers отсортированы по убыванию порога: срабатывает первый подходящий.
var demandTiers = []demandTier{
	{minOrders: 10, bonus: decimal.RequireFromString("0.5"), label: LabelVeryHighDemand},
	{minOrders: 5, bonus: decimal.RequireFromString("0.3"), label: LabelHighDemand},
	{minOrders: 3, bonus: decimal.RequireFromString("0.1"), label: LabelModerateDemand},
}

var (
	peakBonus        = decimal.RequireFromString("0.2")
	weekdayPeakBonus = decimal.RequireFromString("0.1")
)

func demandTierRule(s surgeSignal) (surgeBonus, bool) {
	for _, tier := range demandTiers {
		if s.recentOrders >= tier.minOrders {
			return surgeBonus{amount: tier.bonus, label: tier.label, tier: true}, true
		}
	}
	return surgeBonus{}, false
}

func peakHoursRule(s surgeSignal) (surgeBonus, bool) {
	if !IsPeakHour(s.at) {
		return surgeBonus{}, false
	}
	return surgeBonus{amount: peakBonus, label: LabelPeakHours}, true
}

func weekdayPeakRule(s surgeSignal) (surgeBonus, bool) {
	if !IsPeakHour(s.at) || !IsWeekday(s.at) {
		return surgeBonus{}, false
	}
	return surgeBonus{amount: weekdayPeakBonus}, true
}

// IsPeakHour проверяет часы [10,12] и [15,18] включительно.
func IsPeakHour(t time.Time) bool {
	h := t.Hour()
	return (h >= 10 && h <= 12) || (h >= 15 && h <= 18)
}

// IsWeekday проверяет, что день с понедельника по пятницу.
func IsWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// Surge возвращает множитель спроса и его причину (nil, если множитель 1.0).
func Surge(recentOrders int, at time.Time) (decimal.Decimal, *string) {
	signal := surgeSignal{recentOrders: recentOrders, at: at}

	total := one
	var tierLabel, peakLabel string
	for _, rule := range surgeRules {
		bonus, ok := rule(signal)
		if !ok {
			continue
		}
		total = total.Add(bonus.amount)
		switch {
		case bonus.tier:
			tierLabel = bonus.label
		case bonus.label != "":
			peakLabel = bonus.label
		}
	}
	total = decimal.Min(total, maxSurgeMultiplier)

	if total.Equal(one) {
		return total, nil
	}

	reason := tierLabel
	switch {
	case reason != "" && peakLabel != "":
		reason += " + " + peakLabel
	case reason == "":
		reason = peakLabel
	}
	return total, &reason
}
