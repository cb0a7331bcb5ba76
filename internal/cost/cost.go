// Package cost implements token counting and cost estimation for LLM calls.
// Prices come from a static per-model table; unknown models fall back to a
// documented default so estimation never fails.
package cost

import "math"

// Cost pairs a token count with a monetary amount. It forms an additive
// monoid with Zero as identity.
type Cost struct {
	Tokens int64   `json:"tokens"`
	Amount float64 `json:"amount"`
}

// Zero is the additive identity.
var Zero = Cost{}

// Add returns the component-wise sum of two costs.
func (c Cost) Add(other Cost) Cost {
	return Cost{
		Tokens: c.Tokens + other.Tokens,
		Amount: round6(c.Amount + other.Amount),
	}
}

// IsZero reports whether the cost equals the identity.
func (c Cost) IsZero() bool {
	return c.Tokens == 0 && c.Amount == 0
}

// round6 rounds to 6 decimal places; sub-micro amounts are noise.
func round6(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}
