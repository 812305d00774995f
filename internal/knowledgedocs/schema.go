// Package knowledgedocs owns persistence of the raw KnowledgeDocument rows
// backing the /v1/documents endpoints. It has no direct teacher equivalent;
// its pgx style is modeled on internal/treestore.
package knowledgedocs

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddl = `
CREATE TABLE IF NOT EXISTS knowledge_docs (
    doc_id       TEXT         PRIMARY KEY,
    filename     TEXT         NOT NULL DEFAULT '',
    content      TEXT         NOT NULL,
    uploaded_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// Migrate creates the knowledge_docs table if it does not already exist.
// Idempotent; safe to call on every process start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("knowledgedocs migrate: %w", err)
	}
	return nil
}
