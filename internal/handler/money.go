package handler

import (
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/checkout-transactions/internal/domain"
)

var (
	centsPerEuro = decimal.NewFromInt(100)
	maxCents     = decimal.NewFromInt(int64(domain.MaxAmount))
)

// toCents converts a euro amount to cents. It fails on sub-cent precision and
// on magnitudes beyond domain.MaxAmount.
func toCents(euros decimal.Decimal) (domain.Amount, bool) {
	cents := euros.Mul(centsPerEuro)
	if !cents.IsInteger() || cents.Abs().GreaterThan(maxCents) {
		return 0, false
	}
	return domain.Amount(cents.IntPart()), true
}

func toEuros(cents domain.Amount) decimal.Decimal {
	return decimal.New(int64(cents), -2)
}
