package model

import "github.com/shopspring/decimal"

// MaxAmount bounds every stored amount, price and balance.
var MaxAmount = decimal.New(1, 12)

// WithinMaxAmount reports whether d fits the stored range.
func WithinMaxAmount(d decimal.Decimal) bool {
	return d.Abs().LessThanOrEqual(MaxAmount)
}
