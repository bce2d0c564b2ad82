package aggregate

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	ratioScale  = 18
	yearSeconds = 365 * 24 * 60 * 60
)

// formatTokenAmount renders raw units as a fixed-point string with decimals places.
func formatTokenAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).StringFixed(int32(decimals))
}

// computeGrowth returns close/open - 1, or "" when either side is missing.
func computeGrowth(open, close string) (decimal.Decimal, bool) {
	if open == "" || close == "" {
		return decimal.Zero, false
	}
	o, err := decimal.NewFromString(open)
	if err != nil || o.IsZero() {
		return decimal.Zero, false
	}
	c, err := decimal.NewFromString(close)
	if err != nil {
		return decimal.Zero, false
	}
	return c.DivRound(o, ratioScale).Sub(decimal.NewFromInt(1)), true
}

// computeAPR annualises a window's growth linearly.
func computeAPR(growth decimal.Decimal, windowSeconds uint64) *string {
	if windowSeconds == 0 {
		return nil
	}
	apr := growth.Mul(decimal.NewFromInt(yearSeconds)).DivRound(decimal.NewFromInt(int64(windowSeconds)), ratioScale)
	val := apr.StringFixed(ratioScale)
	return &val
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func formatAll(values []*big.Int) []string {
	out := make([]string, len(values))
	for i, value := range values {
		out[i] = value.String()
	}
	return out
}
