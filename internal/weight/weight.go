// Package weight implements the billing weight rule for inbound parcels.
package weight

import (
	"github.com/shopspring/decimal"
)

var (
	// MinBilled — минимальный оплачиваемый вес.
	MinBilled = decimal.RequireFromString("0.1")
	// Step: шаг округления веса вверх.
	Step = decimal.RequireFromString("0.05")
)

// Round приводит показание весов к оплачиваемому весу: всё, что меньше 0.1 кг, считается
// как 0.1 кг, остальное округляется вверх до ближайших 0.05 кг с точностью до сотых.
func Round(raw decimal.Decimal) decimal.Decimal {
	if raw.LessThan(MinBilled) {
		return MinBilled.Round(2)
	}
	return raw.Div(Step).Ceil().Mul(Step).Round(2)
}

// Parse разбирает десятичное число из текста и сразу округляет его.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return Round(d), nil
}
