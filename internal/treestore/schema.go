// Package treestore owns persistence of the fractal conversation tree: nodes,
// their parent pointers, summaries, and the sessions that group them.
package treestore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlTree = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id  UUID         PRIMARY KEY,
    name        TEXT         NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS nodes (
    node_id               UUID         PRIMARY KEY,
    parent_id             UUID         REFERENCES nodes (node_id),
    session_id            UUID         NOT NULL REFERENCES sessions (session_id) ON DELETE CASCADE,
    role                  TEXT         NOT NULL,
    content               TEXT         NOT NULL,
    summary               TEXT,
    tokens                INTEGER      NOT NULL DEFAULT 0,
    similarity_to_parent  DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at            TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_nodes_session_id ON nodes (session_id);
CREATE INDEX IF NOT EXISTS idx_nodes_parent_id  ON nodes (parent_id);
CREATE INDEX IF NOT EXISTS idx_nodes_pending_summary
    ON nodes (session_id)
    WHERE summary IS NULL;
`

// Migrate creates the sessions and nodes tables if they do not already
// exist. Idempotent; safe to call on every process start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlTree); err != nil {
		return fmt.Errorf("treestore migrate: %w", err)
	}
	return nil
}
