package vectorindex

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddl returns the chunks table DDL with the embedding dimension substituted.
// The vector dimension is baked into the column type at schema creation
// time, matching the embedding model configured for the deployment.
func ddl(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS knowledge_chunks (
    chunk_id    TEXT         PRIMARY KEY,
    doc_id      TEXT         NOT NULL,
    filename    TEXT         NOT NULL DEFAULT '',
    text        TEXT         NOT NULL,
    embedding   vector(%d),
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_doc_id
    ON knowledge_chunks (doc_id);

CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_embedding
    ON knowledge_chunks USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates the knowledge_chunks table and the pgvector extension if
// they do not already exist. Idempotent; safe to call on every process
// start. embeddingDimensions must match the configured embeddings
// provider's output dimension.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddl(embeddingDimensions)); err != nil {
		return fmt.Errorf("vectorindex migrate: %w", err)
	}
	return nil
}
