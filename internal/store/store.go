// Package store implements the local vector store over SQLite. Two
// tables back the engine: code_context (chunked project code with lint
// metadata) and knowledge_base (retrievable documentation chunks).
// Vectors are serialized as JSON and ranked with brute-force cosine
// similarity; when the binary is built with -tags sqlite_vec the
// sqlite-vec extension is registered for accelerated search.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"codevolve/internal/embedding"
	"codevolve/internal/logging"
)

// Store wraps the SQLite handle and the embedding engine used for
// query-time vectorization.
type Store struct {
	db     *sql.DB
	engine embedding.Engine
}

// Open opens (creating as needed) the store at path and applies the
// schema. The directory is created when missing.
func Open(path string, engine embedding.Engine) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	s := &Store{db: db, engine: engine}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Get(logging.CategoryStore).Debugf("store opened at %s", path)
	return s, nil
}

// OpenInMemory opens an ephemeral store. Used by tests.
func OpenInMemory(engine embedding.Engine) (*Store, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, engine: engine}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS knowledge_base (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			content TEXT NOT NULL,
			vector TEXT,
			knowledge_space TEXT DEFAULT '',
			document_type TEXT DEFAULT '',
			framework TEXT DEFAULT '',
			version TEXT DEFAULT '',
			source_hash TEXT NOT NULL UNIQUE,
			metadata_json TEXT DEFAULT '{}',
			last_updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_kb_space ON knowledge_base(knowledge_space)`,
		`CREATE INDEX IF NOT EXISTS idx_kb_framework ON knowledge_base(framework)`,
		`CREATE TABLE IF NOT EXISTS code_context (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL,
			chunk_name TEXT NOT NULL,
			chunk_type TEXT DEFAULT '',
			content TEXT NOT NULL,
			vector TEXT,
			start_line INTEGER DEFAULT 0,
			end_line INTEGER DEFAULT 0,
			content_hash TEXT NOT NULL UNIQUE,
			language TEXT DEFAULT '',
			lint_errors TEXT DEFAULT '[]',
			dependencies TEXT DEFAULT '[]'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cc_path ON code_context(path)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Engine returns the embedding engine, or nil when none is configured.
func (s *Store) Engine() embedding.Engine { return s.engine }

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
