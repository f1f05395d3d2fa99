package booking

import (
	"time"

	"github.com/shopspring/decimal"
)

var halfFee = decimal.NewFromFloat(0.5)

// CancellationFee applies the cancellation policy: free with at least 24h
// notice, half the price with at least 12h, the full price otherwise. The
// tiers apply whoever cancels.
func CancellationFee(price decimal.Decimal, notice time.Duration) decimal.Decimal {
	switch {
	case notice >= 24*time.Hour:
		return decimal.Zero
	case notice >= 12*time.Hour:
		return price.Mul(halfFee).Round(2)
	default:
		return price
	}
}
