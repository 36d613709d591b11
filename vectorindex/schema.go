package vectorindex

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the pgvector extension and the collection tables. The
// lexical side of hybrid search is a stored tsvector column kept in sync by
// the database, so chunks never need a separate sparse upload step.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}

	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		`CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS collection_chunks (
			id UUID PRIMARY KEY,
			collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
			document_id TEXT NOT NULL,
			chunk_index INT NOT NULL,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding VECTOR(%d) NOT NULL,
			content_tsv TSVECTOR GENERATED ALWAYS AS (to_tsvector('english', content)) STORED,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(collection, document_id, chunk_index)
		)`, dimension),
		"CREATE INDEX IF NOT EXISTS idx_collection_chunks_collection ON collection_chunks(collection)",
		"CREATE INDEX IF NOT EXISTS idx_collection_chunks_embedding ON collection_chunks USING ivfflat (embedding vector_cosine_ops)",
		"CREATE INDEX IF NOT EXISTS idx_collection_chunks_tsv ON collection_chunks USING GIN (content_tsv)",
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	return nil
}
