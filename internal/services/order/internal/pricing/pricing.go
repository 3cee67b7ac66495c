// Package pricing computes order line and order totals in exact decimal arithmetic.
package pricing

import (
	"github.com/shopspring/decimal"

	"food-delivery/internal/services/order/internal/domain"
	"food-delivery/internal/services/order/internal/validation"
)

// Scale is the number of fractional digits money amounts carry
const Scale = 2

// PriceLine returns (basePrice + sum(extras)) * quantity.
func PriceLine(basePrice decimal.Decimal, extras []decimal.Decimal, quantity int) (decimal.Decimal, error) {
	if quantity <= 0 {
		return decimal.Zero, validation.ValidateQuantity(quantity)
	}

	unit := basePrice
	for _, extra := range extras {
		unit = unit.Add(extra)
	}
	return unit.Mul(decimal.NewFromInt(int64(quantity))), nil
}

// PriceOrder sums line totals
func PriceOrder(lineTotals []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, t := range lineTotals {
		total = total.Add(t)
	}
	return total
}

// CheckAmount rejects catalog amounts that are negative or finer than a cent.
func CheckAmount(amount decimal.Decimal, details map[string]interface{}) error {
	if amount.IsNegative() || !amount.Equal(amount.Truncate(Scale)) {
		d := map[string]interface{}{"amount": amount.String()}
		for k, v := range details {
			d[k] = v
		}
		return domain.Consistency(domain.CodeInvalidPrice, "catalog price must be a non-negative amount with at most 2 decimals", d)
	}
	return nil
}

// Format renders an amount for the wire, e.g. "60.00"
func Format(amount decimal.Decimal) string {
	return amount.StringFixed(Scale)
}
