package cost

// DefaultPricePer1K is applied when a model has no entry in the price
// table. Deliberately on the expensive side so unknown models are gated
// rather than waved through.
const DefaultPricePer1K = 0.01

// PriceTable maps a model identifier to its price per 1000 tokens.
// Model identifiers are opaque provider strings.
var PriceTable = map[string]float64{
	"gemini-2.5-pro":        0.00125,
	"gemini-2.5-flash":      0.0003,
	"gemini-2.5-flash-lite": 0.0001,
	"gemini-2.0-flash":      0.0001,
	"gemini-2.0-flash-lite": 0.000075,
	"gemini-embedding-001":  0.000025,
}

// PricePer1K returns the per-1K-token price for a model, falling back to
// DefaultPricePer1K for unknown identifiers.
func PricePer1K(modelID string) float64 {
	if p, ok := PriceTable[modelID]; ok {
		return p
	}
	return DefaultPricePer1K
}
