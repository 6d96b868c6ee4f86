package repository

import (
	"accountmart-api/internal/apperr"
	"accountmart-api/internal/model"

	"github.com/shopspring/decimal"
)

// Monetary values are persisted as integer minor units (two decimal places).
const minorScale = 2

// maxMinor is model.MaxAmount in minor units, well inside int64.
var maxMinor = toMinor(model.MaxAmount)

func toMinor(d decimal.Decimal) int64 {
	return d.Shift(minorScale).Round(0).IntPart()
}

func fromMinor(v int64) decimal.Decimal {
	return decimal.New(v, -minorScale)
}

// checkAmounts rejects values that would not survive the minor-unit conversion.
func checkAmounts(ds ...decimal.Decimal) error {
	for _, d := range ds {
		if !model.WithinMaxAmount(d) {
			return apperr.InvalidInput("amount %s exceeds %s", d, model.MaxAmount)
		}
	}
	return nil
}

func errBalanceLimit() error {
	return apperr.InvalidInput("balance would exceed %s", model.MaxAmount)
}
