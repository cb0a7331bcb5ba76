package cost

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator counts tokens and computes cost from the price table.
// It uses the cl100k_base encoding, which approximates the tokenizers of
// current LLM families closely enough for budgeting.
type Estimator struct {
	mu      sync.Mutex
	encoder *tiktoken.Tiktoken
}

var (
	defaultEstimator *Estimator
	estimatorOnce    sync.Once
)

// NewEstimator returns the shared estimator. The tiktoken encoder is
// loaded once; when loading fails the estimator degrades to a chars/4
// heuristic instead of erroring.
func NewEstimator() *Estimator {
	estimatorOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			defaultEstimator = &Estimator{}
			return
		}
		defaultEstimator = &Estimator{encoder: enc}
	})
	return defaultEstimator
}

// Count returns the token count for text. Returns 0 for empty input.
// Falls back to len(text)/4 when no encoder is available.
func (e *Estimator) Count(text string) int64 {
	if text == "" {
		return 0
	}
	if e.encoder == nil {
		return int64(len(text) / 4)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return int64(len(e.encoder.Encode(text, nil, nil)))
}

// Estimate returns the token count and cost of sending text to modelID.
// cost = tokens/1000 * price_table[modelID], rounded to 6 decimals.
func (e *Estimator) Estimate(text, modelID string) Cost {
	tokens := e.Count(text)
	return Cost{
		Tokens: tokens,
		Amount: round6(float64(tokens) / 1000 * PricePer1K(modelID)),
	}
}
