package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var testRules = Rules{
	TaxRateBps:            1000, // 10%
	FreeShippingThreshold: 10000,
	FlatShippingFee:       999,
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name  string
		lines []LineInput
		want  Quote
	}{
		{
			name:  "two units over threshold",
			lines: []LineInput{{UnitPrice: 10000, Quantity: 2}},
			want:  Quote{Subtotal: 20000, Tax: 2000, Shipping: 0, Total: 22000},
		},
		{
			name:  "below threshold pays flat shipping",
			lines: []LineInput{{UnitPrice: 2500, Quantity: 1}},
			want:  Quote{Subtotal: 2500, Tax: 250, Shipping: 999, Total: 3749},
		},
		{
			name:  "subtotal exactly at threshold ships free",
			lines: []LineInput{{UnitPrice: 5000, Quantity: 2}},
			want:  Quote{Subtotal: 10000, Tax: 1000, Shipping: 0, Total: 11000},
		},
		{
			name:  "one cent under threshold pays shipping",
			lines: []LineInput{{UnitPrice: 9999, Quantity: 1}},
			want:  Quote{Subtotal: 9999, Tax: 1000, Shipping: 999, Total: 11998},
		},
		{
			name: "multiple lines sum exactly",
			lines: []LineInput{
				{UnitPrice: 1099, Quantity: 3},
				{UnitPrice: 250, Quantity: 2},
			},
			want: Quote{Subtotal: 3797, Tax: 380, Shipping: 999, Total: 5176},
		},
		{
			name:  "no lines",
			lines: nil,
			want:  Quote{Subtotal: 0, Tax: 0, Shipping: 999, Total: 999},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.lines, testRules)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTaxRoundsHalfUp(t *testing.T) {
	// 5 cents at 10% = 0.5 cents, rounds up to 1
	q := Calculate([]LineInput{{UnitPrice: 5, Quantity: 1}}, testRules)
	assert.Equal(t, int64(1), q.Tax)

	// 4 cents at 10% = 0.4 cents, rounds down to 0
	q = Calculate([]LineInput{{UnitPrice: 4, Quantity: 1}}, testRules)
	assert.Equal(t, int64(0), q.Tax)
}

func TestSubtotalEqualsSumOfLineTotals(t *testing.T) {
	lines := []LineInput{
		{UnitPrice: 333, Quantity: 3},
		{UnitPrice: 1, Quantity: 7},
		{UnitPrice: 99999, Quantity: 2},
	}

	var sum int64
	for _, l := range lines {
		sum += LineTotal(l.UnitPrice, l.Quantity)
	}

	q := Calculate(lines, testRules)
	assert.Equal(t, sum, q.Subtotal)
	assert.Equal(t, q.Subtotal+q.Tax+q.Shipping, q.Total)
}

func TestCalculateIsDeterministic(t *testing.T) {
	lines := []LineInput{{UnitPrice: 1234, Quantity: 5}, {UnitPrice: 42, Quantity: 9}}
	first := Calculate(lines, testRules)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Calculate(lines, testRules))
	}
}
