package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codevolve/internal/embedding"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory(embedding.NewHashEngine(64))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestKnowledgeUpsertAndSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docs := []KnowledgeChunk{
		{Source: "fastapi/routing.md", Content: "FastAPI routes are declared with the app.get decorator", Framework: "fastapi"},
		{Source: "react/components.md", Content: "React components return JSX from a render function", Framework: "react"},
		{Source: "fastapi/health.md", Content: "a health check endpoint returns status ok from FastAPI", Framework: "fastapi"},
	}
	for _, d := range docs {
		require.NoError(t, s.UpsertKnowledge(ctx, d))
	}

	results, err := s.SearchKnowledge(ctx, "fastapi health check endpoint", 2, KnowledgeFilter{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "fastapi/health.md", results[0].Source)
	assert.Greater(t, results[0].RelevanceScore, results[1].RelevanceScore-1e-9)
}

func TestKnowledgeUpsertIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chunk := KnowledgeChunk{Source: "doc", Content: "same content"}
	require.NoError(t, s.UpsertKnowledge(ctx, chunk))
	require.NoError(t, s.UpsertKnowledge(ctx, chunk))

	results, err := s.SearchKnowledge(ctx, "same content", 10, KnowledgeFilter{})
	require.NoError(t, err)
	assert.Len(t, results, 1, "upsert by source hash must not duplicate")
}

func TestKnowledgeFilteredSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertKnowledge(ctx, KnowledgeChunk{
		Source: "a", Content: "shared words about endpoints", Framework: "fastapi", KnowledgeSpace: "proj1"}))
	require.NoError(t, s.UpsertKnowledge(ctx, KnowledgeChunk{
		Source: "b", Content: "shared words about endpoints too", Framework: "express", KnowledgeSpace: "proj2"}))

	results, err := s.SearchKnowledge(ctx, "endpoints", 10, KnowledgeFilter{Framework: "fastapi"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Source)
}

func TestSearchWithoutEngineFails(t *testing.T) {
	s, err := OpenInMemory(nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.SearchKnowledge(context.Background(), "query", 5, KnowledgeFilter{})
	assert.Error(t, err)
}

func TestCodeChunkRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertCodeChunk(ctx, CodeChunk{
		Path: "backend/api/users.py", ChunkName: "get_user", ChunkType: "function",
		Content: "def get_user(id): ...", StartLine: 10, EndLine: 14,
		Language: "python", LintErrors: []string{"unused variable 'x'"},
		Dependencies: []string{"fastapi"},
	}))
	require.NoError(t, s.UpsertCodeChunk(ctx, CodeChunk{
		Path: "backend/api/users.py", ChunkName: "list_users", ChunkType: "function",
		Content: "def list_users(): ...", StartLine: 1, EndLine: 8, Language: "python",
	}))

	chunks, err := s.ChunksForPath(ctx, "backend/api/users.py")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "list_users", chunks[0].ChunkName, "ordered by start line")

	lints, err := s.LintErrorsForPath(ctx, "backend/api/users.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"unused variable 'x'"}, lints)
}

func TestOpenOnDisk(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir+"/sub/knowledge.db", embedding.NewHashEngine(16))
	require.NoError(t, err)
	require.NoError(t, s.UpsertKnowledge(context.Background(), KnowledgeChunk{Source: "x", Content: "persisted"}))
	require.NoError(t, s.Close())

	s2, err := Open(dir+"/sub/knowledge.db", embedding.NewHashEngine(16))
	require.NoError(t, err)
	defer s2.Close()
	results, err := s2.SearchKnowledge(context.Background(), "persisted", 1, KnowledgeFilter{})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
