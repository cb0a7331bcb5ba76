package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"codevolve/internal/embedding"
)

// KnowledgeChunk is one retrievable fragment with provenance tags.
// Immutable once stored.
type KnowledgeChunk struct {
	ID             int64     `json:"id"`
	Source         string    `json:"source"`
	Content        string    `json:"content"`
	Vector         []float32 `json:"vector,omitempty"`
	KnowledgeSpace string    `json:"knowledge_space"`
	DocumentType   string    `json:"document_type"`
	Framework      string    `json:"framework"`
	Version        string    `json:"version"`
	SourceHash     string    `json:"source_hash"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	RelevanceScore float64   `json:"relevance_score,omitempty"`
	LastUpdated    time.Time `json:"last_updated"`
}

// KnowledgeFilter restricts search by metadata equality. Zero values
// mean "any".
type KnowledgeFilter struct {
	KnowledgeSpace string
	Framework      string
	DocumentType   string
}

// UpsertKnowledge stores a chunk keyed by its source hash, embedding
// the content when an engine is configured and no vector was supplied.
// The orchestrator never calls this during a run; the knowledge base
// is read-only while an operation is in flight.
func (s *Store) UpsertKnowledge(ctx context.Context, chunk KnowledgeChunk) error {
	if chunk.SourceHash == "" {
		chunk.SourceHash = HashContent(chunk.Source + "\x00" + chunk.Content)
	}

	if chunk.Vector == nil && s.engine != nil {
		vec, err := s.engine.Embed(ctx, chunk.Content)
		if err != nil {
			return fmt.Errorf("failed to embed chunk: %w", err)
		}
		chunk.Vector = vec
	}

	vecJSON, err := json.Marshal(chunk.Vector)
	if err != nil {
		return fmt.Errorf("failed to serialize vector: %w", err)
	}
	metaJSON, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return fmt.Errorf("failed to serialize metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO knowledge_base
			(source, content, vector, knowledge_space, document_type, framework, version, source_hash, metadata_json, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(source_hash) DO UPDATE SET
			content = excluded.content,
			vector = excluded.vector,
			metadata_json = excluded.metadata_json,
			last_updated = CURRENT_TIMESTAMP`,
		chunk.Source, chunk.Content, string(vecJSON), chunk.KnowledgeSpace,
		chunk.DocumentType, chunk.Framework, chunk.Version, chunk.SourceHash, string(metaJSON))
	return err
}

// SearchKnowledge returns the top-k chunks by cosine similarity to the
// query, optionally restricted by filter.
func (s *Store) SearchKnowledge(ctx context.Context, query string, k int, filter KnowledgeFilter) ([]KnowledgeChunk, error) {
	if k <= 0 {
		k = 5
	}
	if s.engine == nil {
		return nil, fmt.Errorf("no embedding engine configured")
	}

	queryVec, err := s.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	where := "vector IS NOT NULL AND vector != 'null'"
	var args []any
	if filter.KnowledgeSpace != "" {
		where += " AND knowledge_space = ?"
		args = append(args, filter.KnowledgeSpace)
	}
	if filter.Framework != "" {
		where += " AND framework = ?"
		args = append(args, filter.Framework)
	}
	if filter.DocumentType != "" {
		where += " AND document_type = ?"
		args = append(args, filter.DocumentType)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, content, vector, knowledge_space, document_type, framework, version, source_hash, metadata_json
		FROM knowledge_base WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []KnowledgeChunk
	for rows.Next() {
		var c KnowledgeChunk
		var vecJSON, metaJSON string
		if err := rows.Scan(&c.ID, &c.Source, &c.Content, &vecJSON, &c.KnowledgeSpace,
			&c.DocumentType, &c.Framework, &c.Version, &c.SourceHash, &metaJSON); err != nil {
			continue
		}

		var vec []float32
		if err := json.Unmarshal([]byte(vecJSON), &vec); err != nil || vec == nil {
			continue
		}
		sim, err := embedding.CosineSimilarity(queryVec, vec)
		if err != nil {
			continue
		}

		c.RelevanceScore = sim
		_ = json.Unmarshal([]byte(metaJSON), &c.Metadata)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].RelevanceScore > candidates[j].RelevanceScore
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// HashContent returns the hex SHA-256 of content, used as upsert key.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
