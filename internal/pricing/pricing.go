// Package pricing computes order totals in fixed-point arithmetic. Every
// amount is an int64 of minor units (cents) and the tax rate is basis points,
// so identical inputs produce identical totals on every platform.
package pricing

// Rules are the store-wide pricing rules applied at checkout.
type Rules struct {
	TaxRateBps            int64
	FreeShippingThreshold int64
	FlatShippingFee       int64
}

// LineInput is one priced line item.
type LineInput struct {
	UnitPrice int64
	Quantity  int
}

// Quote is the monetary breakdown for a set of line items.
type Quote struct {
	Subtotal int64 `json:"subtotal"`
	Tax      int64 `json:"tax"`
	Shipping int64 `json:"shipping"`
	Total    int64 `json:"total"`
}

// Calculate prices the given lines under the rules. Pure: no side effects,
// deterministic for auditability of historical orders.
func Calculate(lines []LineInput, rules Rules) Quote {
	var subtotal int64
	for _, l := range lines {
		subtotal += LineTotal(l.UnitPrice, l.Quantity)
	}

	tax := roundHalfUpBps(subtotal, rules.TaxRateBps)

	var shipping int64
	if subtotal < rules.FreeShippingThreshold {
		shipping = rules.FlatShippingFee
	}

	return Quote{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Total:    subtotal + tax + shipping,
	}
}

// LineTotal is the extended price of a single line.
func LineTotal(unitPrice int64, quantity int) int64 {
	return unitPrice * int64(quantity)
}

// roundHalfUpBps applies a basis-point rate to an amount, rounding half up to
// the minor unit. Amounts are never negative in this system.
func roundHalfUpBps(amount, bps int64) int64 {
	return (amount*bps + 5000) / 10000
}
