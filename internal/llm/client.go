// Package llm provides the provider adapter for LLM calls: a small
// client interface, a Gemini implementation with bounded retry, and the
// tier-to-model registry the budget scopes resolve against.
package llm

import (
	"context"
	"errors"
)

// ErrPermanent marks provider failures that retrying cannot fix
// (schema rejections, auth failures, other 4xx).
var ErrPermanent = errors.New("permanent provider error")

// ErrNoCompletion is returned when the provider responds without any
// candidate text.
var ErrNoCompletion = errors.New("no completion returned")

// Usage reports token counts from the provider.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", "model"
	Content string `json:"content"`
}

// Request is one completion request.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Response is the provider's answer plus usage accounting.
type Response struct {
	Text  string
	Usage Usage
}

// Client is the minimal synchronous surface every provider adapter
// implements.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Provider() string
}

// SimpleRequest builds a single-turn request with an optional system
// message.
func SimpleRequest(model, system, prompt string) Request {
	var msgs []Message
	if system != "" {
		msgs = append(msgs, Message{Role: "system", Content: system})
	}
	msgs = append(msgs, Message{Role: "user", Content: prompt})
	return Request{Model: model, Messages: msgs, Temperature: 0.1}
}
