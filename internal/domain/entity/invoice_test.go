package entity

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLineItem_DeriveTotal(t *testing.T) {
	tests := []struct {
		name     string
		item     LineItem
		expected string
	}{
		{
			name:     "quantity times unit value",
			item:     LineItem{Quantity: decimal.RequireFromString("3"), UnitValue: decimal.RequireFromString("0.333")},
			expected: "0.999",
		},
		{
			name:     "fractional quantity keeps full precision",
			item:     LineItem{Quantity: decimal.RequireFromString("1.5"), UnitValue: decimal.RequireFromString("2.4567")},
			expected: "3.68505",
		},
		{
			name: "existing total is kept",
			item: LineItem{
				Quantity:  decimal.RequireFromString("2"),
				UnitValue: decimal.RequireFromString("5"),
				Total:     decimal.RequireFromString("9.99"),
			},
			expected: "9.99",
		},
		{
			name:     "missing unit value leaves total empty",
			item:     LineItem{Quantity: decimal.RequireFromString("2")},
			expected: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := tt.item
			item.DeriveTotal()
			assert.Equal(t, tt.expected, item.Total.String())
		})
	}
}
