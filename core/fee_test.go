package core

import (
	"errors"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

func TestFeeMeetsMinimum(t *testing.T) {
	tests := []struct {
		name     string
		paid     string
		required string
		expected bool
	}{
		{"exact fee", "0.01", "0.01", true},
		{"fee above", "0.02", "0.01", true},
		{"fee below", "0.001", "0.01", false},
		{"one wei short", "0.009999999999999999", "0.01", false},
		{"sub-wei excess rounds away", "0.0099999999999999999", "0.01", true},
		{"zero required", "0", "0", true},
		{"negative paid", "-1", "0", false},
		{"trailing zeros", "0.0100000", "0.01", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FeeMeetsMinimum(decimal.RequireFromString(tt.paid), decimal.RequireFromString(tt.required))
			check.Equal(t, tt.expected, result)
		})
	}
}

func TestParseFee(t *testing.T) {
	fee, err := ParseFee("0.25")
	assert.NoError(t, err)
	check.True(t, fee.Equal(decimal.RequireFromString("0.25")))

	_, err = ParseFee("not-a-number")
	assert.Error(t, err)

	_, err = ParseFee("-0.01")
	check.True(t, errors.Is(err, ErrInsufficientFee))
}

func TestDefaultAuctionFee(t *testing.T) {
	check.Equal(t, "0.01", DefaultAuctionFee.String())
}
