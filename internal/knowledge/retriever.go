package knowledge

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"codevolve/internal/llm"
	"codevolve/internal/logging"
	"codevolve/internal/store"
)

// Retriever is a stateless façade over the vector store. All methods
// degrade to empty results rather than surfacing errors to callers;
// retrieval is advisory context, never a hard dependency.
type Retriever struct {
	store *store.Store
	log   *zap.SugaredLogger
}

func NewRetriever(s *store.Store) *Retriever {
	return &Retriever{
		store: s,
		log:   logging.Get(logging.CategoryKnowledge),
	}
}

// CacheKey builds the session-cache key for a retrieval request.
func CacheKey(task, systemType, architecturePattern string) string {
	return fmt.Sprintf("%s::%s::%s", task, systemType, architecturePattern)
}

// RetrieveContext embeds the query, runs a top-k search and formats the
// hits as numbered knowledge blocks separated by blank lines. Returns
// "" on any failure.
func (r *Retriever) RetrieveContext(ctx context.Context, query string, k int) string {
	chunks := r.retrieve(ctx, query, k)
	return FormatChunks(chunks)
}

// RetrieveComposite retrieves for the main query first, then appends
// sub-query hits whose content has not been seen yet, stopping once the
// approximate token count reaches maxTokens.
func (r *Retriever) RetrieveComposite(ctx context.Context, mainQuery string, subQueries []string, kMain, kSub, maxTokens int) string {
	seen := make(map[string]struct{})
	var kept []store.KnowledgeChunk

	for _, c := range r.retrieve(ctx, mainQuery, kMain) {
		if _, dup := seen[c.Content]; dup {
			continue
		}
		seen[c.Content] = struct{}{}
		kept = append(kept, c)
	}

	budget := approxTokens(kept)
	for _, sub := range subQueries {
		if maxTokens > 0 && budget >= maxTokens {
			break
		}
		for _, c := range r.retrieve(ctx, sub, kSub) {
			if _, dup := seen[c.Content]; dup {
				continue
			}
			seen[c.Content] = struct{}{}
			kept = append(kept, c)
			budget += len(c.Content) / 4
		}
	}

	return FormatChunks(kept)
}

// Synthesize asks the model to condense retrieved chunks into a focused
// briefing. Falls back to the raw formatted chunks when the model is
// unavailable or fails.
func (r *Retriever) Synthesize(ctx context.Context, client llm.Client, model, query string, chunks []store.KnowledgeChunk) string {
	raw := FormatChunks(chunks)
	if client == nil || raw == "" {
		return raw
	}

	prompt := fmt.Sprintf(`Condense the following reference material into the facts relevant to this task. Keep source attributions.

TASK: %s

MATERIAL:
%s`, query, raw)

	resp, err := client.Complete(ctx, llm.SimpleRequest(model, "", prompt))
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		r.log.Warnf("context synthesis failed, using raw chunks: %v", err)
		return raw
	}
	return resp.Text
}

func (r *Retriever) retrieve(ctx context.Context, query string, k int) []store.KnowledgeChunk {
	if r.store == nil || strings.TrimSpace(query) == "" {
		return nil
	}
	if k <= 0 {
		k = 5
	}
	chunks, err := r.store.SearchKnowledge(ctx, query, k, store.KnowledgeFilter{})
	if err != nil {
		r.log.Warnf("knowledge search failed for %q: %v", query, err)
		return nil
	}
	return chunks
}

// FormatChunks renders chunks as the canonical knowledge block text.
func FormatChunks(chunks []store.KnowledgeChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[KNOWLEDGE %d] SOURCE: %s\n%s", i+1, c.Source, c.Content)
	}
	return b.String()
}

func approxTokens(chunks []store.KnowledgeChunk) int {
	n := 0
	for _, c := range chunks {
		n += len(c.Content) / 4
	}
	return n
}
