package llm

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedClient returns canned responses in order, or per-matcher.
// Used by tests and by dry-run mode in the CLI.
type ScriptedClient struct {
	mu        sync.Mutex
	responses []string
	matchers  []matcher
	calls     []Request
	next      int
}

type matcher struct {
	match func(Request) bool
	reply string
}

// NewScriptedClient creates a client replaying responses in order.
func NewScriptedClient(responses ...string) *ScriptedClient {
	return &ScriptedClient{responses: responses}
}

// Provider identifies scripted responses in usage aggregates.
func (c *ScriptedClient) Provider() string { return "scripted" }

// OnMatch registers a reply for requests the predicate accepts.
// Matchers take precedence over the ordered response list.
func (c *ScriptedClient) OnMatch(match func(Request) bool, reply string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.matchers = append(c.matchers, matcher{match: match, reply: reply})
}

// Complete replays the script.
func (c *ScriptedClient) Complete(_ context.Context, req Request) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, req)

	for _, m := range c.matchers {
		if m.match(req) {
			return c.respond(m.reply), nil
		}
	}

	if c.next >= len(c.responses) {
		return Response{}, fmt.Errorf("scripted client exhausted after %d calls", len(c.responses))
	}
	reply := c.responses[c.next]
	c.next++
	return c.respond(reply), nil
}

func (c *ScriptedClient) respond(text string) Response {
	return Response{
		Text: text,
		Usage: Usage{
			InputTokens:  10,
			OutputTokens: len(text) / 4,
			TotalTokens:  10 + len(text)/4,
		},
	}
}

// Calls returns the requests seen so far.
func (c *ScriptedClient) Calls() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Request(nil), c.calls...)
}

// CallCount returns how many completions were requested.
func (c *ScriptedClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}
