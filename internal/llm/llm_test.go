package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codevolve/internal/config"
)

func geminiOK(text string) string {
	resp := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": text}}}, "finishReason": "STOP"},
		},
		"usageMetadata": map[string]any{
			"promptTokenCount":     12,
			"candidatesTokenCount": 7,
			"totalTokenCount":      19,
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func newTestGemini(t *testing.T, handler http.HandlerFunc) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewGeminiClient(GeminiConfig{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		Timeout:    5 * time.Second,
		MaxRetries: 2,
	})
	require.NoError(t, err)
	return c
}

func TestGeminiCompleteSuccess(t *testing.T) {
	c := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body, "contents")
		w.Write([]byte(geminiOK("hello from gemini")))
	})

	resp, err := c.Complete(context.Background(), SimpleRequest("gemini-2.5-flash", "be terse", "say hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello from gemini", resp.Text)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 7, resp.Usage.OutputTokens)
}

func TestGeminiRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(geminiOK("second try")))
	})

	resp, err := c.Complete(context.Background(), SimpleRequest("m", "", "p"))
	require.NoError(t, err)
	assert.Equal(t, "second try", resp.Text)
	assert.EqualValues(t, 2, calls.Load())
}

func TestGeminiPermanentErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"bad schema","status":"INVALID_ARGUMENT"}}`))
	})

	_, err := c.Complete(context.Background(), SimpleRequest("m", "", "p"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPermanent)
	assert.EqualValues(t, 1, calls.Load(), "4xx must not be retried")
}

func TestGeminiEmptyCandidates(t *testing.T) {
	c := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	})

	_, err := c.Complete(context.Background(), SimpleRequest("m", "", "p"))
	assert.ErrorIs(t, err, ErrNoCompletion)
}

func TestGeminiRequiresAPIKey(t *testing.T) {
	_, err := NewGeminiClient(GeminiConfig{})
	assert.Error(t, err)
}

func TestRegistryResolution(t *testing.T) {
	reg, err := NewRegistry(config.Default().LLM, NewScriptedClient())
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-pro", reg.ModelFor(config.TierHighest))
	assert.Equal(t, "gemini-2.0-flash-lite", reg.ModelFor(config.TierXS))
}

func TestRegistryFallsBackForUnknownTier(t *testing.T) {
	cfg := config.LLMConfig{Models: map[config.ModelTier]string{config.TierSmall: "tiny-model"}}
	reg, err := NewRegistry(cfg, NewScriptedClient())
	require.NoError(t, err)

	assert.Equal(t, "tiny-model", reg.ModelFor(config.TierHighest))
}

func TestScriptedClientOrderAndMatchers(t *testing.T) {
	c := NewScriptedClient("one", "two")
	c.OnMatch(func(r Request) bool { return r.Model == "special" }, "matched")

	r1, err := c.Complete(context.Background(), Request{Model: "a"})
	require.NoError(t, err)
	assert.Equal(t, "one", r1.Text)

	rm, err := c.Complete(context.Background(), Request{Model: "special"})
	require.NoError(t, err)
	assert.Equal(t, "matched", rm.Text)

	r2, err := c.Complete(context.Background(), Request{Model: "b"})
	require.NoError(t, err)
	assert.Equal(t, "two", r2.Text)

	_, err = c.Complete(context.Background(), Request{Model: "c"})
	assert.Error(t, err, "script exhausted")
	assert.Equal(t, 4, c.CallCount())
}
