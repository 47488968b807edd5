// Package money formats decimal amounts as Brazilian reais.
package money

import (
	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Currency is the only currency the application books in.
const Currency = gomoney.BRL

// FromDecimal converts a major-unit decimal amount into a go-money value,
// rounding half away from zero to the currency's minor unit.
func FromDecimal(amount decimal.Decimal) *gomoney.Money {
	cur := gomoney.GetCurrency(Currency)
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	return gomoney.New(minor.IntPart(), Currency)
}

// FormatBRL renders amount as e.g. "R$81.000,00".
func FormatBRL(amount decimal.Decimal) string {
	return FromDecimal(amount).Display()
}

// Percent returns part/whole*100 rounded to two places, or zero when whole is zero.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100)).Round(2)
}
