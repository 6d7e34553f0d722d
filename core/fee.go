package core

import (
	"github.com/shopspring/decimal"
)

const feePrecision int32 = 18 // wei resolution for ETH-denominated fees

// DefaultAuctionFee is the creation cost of an auction, 0.01 in ETH units.
var DefaultAuctionFee = decimal.RequireFromString("0.01")

// FeeMeetsMinimum returns true if paid covers required.
// Both values are rounded to feePrecision so sub-wei noise never decides the outcome.
func FeeMeetsMinimum(paid, required decimal.Decimal) bool {
	return paid.Round(feePrecision).GreaterThanOrEqual(required.Round(feePrecision))
}

// ParseFee parses a decimal fee string such as "0.01".
func ParseFee(s string) (decimal.Decimal, error) {
	fee, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if fee.IsNegative() {
		return decimal.Zero, ErrInsufficientFee
	}
	return fee, nil
}
