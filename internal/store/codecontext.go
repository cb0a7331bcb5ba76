package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// CodeChunk is one chunk of project code with static-analysis metadata.
type CodeChunk struct {
	ID           int64     `json:"id"`
	Path         string    `json:"path"`
	ChunkName    string    `json:"chunk_name"`
	ChunkType    string    `json:"chunk_type"`
	Content      string    `json:"content"`
	Vector       []float32 `json:"vector,omitempty"`
	StartLine    int       `json:"start_line"`
	EndLine      int       `json:"end_line"`
	ContentHash  string    `json:"content_hash"`
	Language     string    `json:"language"`
	LintErrors   []string  `json:"lint_errors,omitempty"`
	Dependencies []string  `json:"dependencies,omitempty"`
}

// UpsertCodeChunk stores a code chunk keyed by its content hash.
func (s *Store) UpsertCodeChunk(ctx context.Context, chunk CodeChunk) error {
	if chunk.ContentHash == "" {
		chunk.ContentHash = HashContent(chunk.Path + "\x00" + chunk.ChunkName + "\x00" + chunk.Content)
	}

	if chunk.Vector == nil && s.engine != nil {
		vec, err := s.engine.Embed(ctx, chunk.Content)
		if err != nil {
			return fmt.Errorf("failed to embed code chunk: %w", err)
		}
		chunk.Vector = vec
	}

	vecJSON, _ := json.Marshal(chunk.Vector)
	lintJSON, _ := json.Marshal(chunk.LintErrors)
	depsJSON, _ := json.Marshal(chunk.Dependencies)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO code_context
			(path, chunk_name, chunk_type, content, vector, start_line, end_line, content_hash, language, lint_errors, dependencies)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO UPDATE SET
			content = excluded.content,
			vector = excluded.vector,
			lint_errors = excluded.lint_errors,
			dependencies = excluded.dependencies`,
		chunk.Path, chunk.ChunkName, chunk.ChunkType, chunk.Content, string(vecJSON),
		chunk.StartLine, chunk.EndLine, chunk.ContentHash, chunk.Language,
		string(lintJSON), string(depsJSON))
	return err
}

// LintErrorsForPath returns the recorded lint errors for all chunks of
// a file. The quality validator aggregates these read-only.
func (s *Store) LintErrorsForPath(ctx context.Context, path string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT lint_errors FROM code_context WHERE path = ?`, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []string
	for rows.Next() {
		var lintJSON string
		if err := rows.Scan(&lintJSON); err != nil {
			continue
		}
		var errsList []string
		if err := json.Unmarshal([]byte(lintJSON), &errsList); err == nil {
			all = append(all, errsList...)
		}
	}
	return all, rows.Err()
}

// ChunksForPath returns the stored chunks of a file in line order.
func (s *Store) ChunksForPath(ctx context.Context, path string) ([]CodeChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, chunk_name, chunk_type, content, start_line, end_line, content_hash, language, lint_errors, dependencies
		FROM code_context WHERE path = ? ORDER BY start_line`, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []CodeChunk
	for rows.Next() {
		var c CodeChunk
		var lintJSON, depsJSON string
		if err := rows.Scan(&c.ID, &c.Path, &c.ChunkName, &c.ChunkType, &c.Content,
			&c.StartLine, &c.EndLine, &c.ContentHash, &c.Language, &lintJSON, &depsJSON); err != nil {
			continue
		}
		_ = json.Unmarshal([]byte(lintJSON), &c.LintErrors)
		_ = json.Unmarshal([]byte(depsJSON), &c.Dependencies)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
