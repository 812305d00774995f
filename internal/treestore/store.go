package treestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/causalfractal/contextengine/pkg/contextmodel"
)

// Embedder is the slice of an embedding provider that TreeStore needs to
// compute similarity_to_parent. Defined locally so this package does not
// depend on the full embeddings.Provider interface or any specific
// implementation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is the PostgreSQL-backed implementation of the fractal conversation
// tree. All methods are safe for concurrent use.
type Store struct {
	pool      *pgxpool.Pool
	embedder  Embedder
	threshold float64
}

// New constructs a Store over an already-migrated pool. embedder may be nil,
// in which case similarity_to_parent always falls back to the degraded
// text-cosine heuristic. threshold is the configured coarse-graining
// similarity threshold (λ) used by NodesPendingSummary to find nodes the
// orchestrator should have scheduled for summarization.
func New(pool *pgxpool.Pool, embedder Embedder, threshold float64) *Store {
	return &Store{pool: pool, embedder: embedder, threshold: threshold}
}

// CreateSession inserts a new session row and returns its id.
func (s *Store) CreateSession(ctx context.Context, name string) (uuid.UUID, error) {
	id := uuid.New()
	const q = `INSERT INTO sessions (session_id, name) VALUES ($1, $2)`
	if _, err := s.pool.Exec(ctx, q, id, name); err != nil {
		return uuid.Nil, fmt.Errorf("treestore: create session: %w", err)
	}
	return id, nil
}

// CreateNode implements the TreeStore.create_node operation, minting a
// fresh node id. See CreateNodeWithID for the id-preserving variant.
func (s *Store) CreateNode(ctx context.Context, sessionID uuid.UUID, parentID *uuid.UUID, role contextmodel.Role, content string, tokens int) (uuid.UUID, error) {
	return s.CreateNodeWithID(ctx, uuid.New(), sessionID, parentID, role, content, tokens)
}

// CreateNodeWithID implements the TreeStore.create_node operation under a
// caller-supplied node id. This is how the orchestrator's pre-minted
// assistant node id (step 3) reaches the row the caller already reported to
// the client via X-Assistant-Node-ID. If parentID is non-nil, the parent is
// fetched and similarity_to_parent is computed from the embedder (falling
// back to a degraded text heuristic if the embedder is nil or fails), and
// the parent lookup plus insert happen inside a single transaction so
// concurrent readers of ContextChain never observe a half-initialized node.
func (s *Store) CreateNodeWithID(ctx context.Context, nodeID uuid.UUID, sessionID uuid.UUID, parentID *uuid.UUID, role contextmodel.Role, content string, tokens int) (uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("treestore: create node: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	similarity := 0.0
	if parentID != nil {
		var parentSessionID uuid.UUID
		var parentContent string

		const parentQ = `
			SELECT session_id, content
			FROM   nodes
			WHERE  node_id = $1
			FOR SHARE`
		err := tx.QueryRow(ctx, parentQ, *parentID).Scan(&parentSessionID, &parentContent)
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrParentNotFound
		}
		if err != nil {
			return uuid.Nil, fmt.Errorf("treestore: create node: fetch parent: %w", err)
		}
		if parentSessionID != sessionID {
			return uuid.Nil, ErrSessionMismatch
		}

		// similarity_to_parent is cosine(node, parent content) per the
		// invariant in spec §3, not the parent's coarse-grained summary.
		similarity = s.similarity(ctx, parentContent, content)
	}

	const insertQ = `
		INSERT INTO nodes (node_id, parent_id, session_id, role, content, tokens, similarity_to_parent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.Exec(ctx, insertQ, nodeID, parentID, sessionID, string(role), content, tokens, similarity); err != nil {
		return uuid.Nil, fmt.Errorf("treestore: create node: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("treestore: create node: commit: %w", err)
	}
	return nodeID, nil
}

// similarity computes cosine similarity between parent and child content,
// using the configured embedder when available and falling back to a
// degraded text heuristic on error or when no embedder is configured.
func (s *Store) similarity(ctx context.Context, parentText, childText string) float64 {
	if s.embedder == nil {
		return textCosineSimilarity(parentText, childText)
	}

	parentVec, err1 := s.embedder.Embed(ctx, parentText)
	childVec, err2 := s.embedder.Embed(ctx, childText)
	if err1 != nil || err2 != nil {
		slog.Warn("treestore: embedding unavailable, degrading to text similarity",
			"error1", err1, "error2", err2)
		return textCosineSimilarity(parentText, childText)
	}
	return clamp01(cosineSimilarity(parentVec, childVec))
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// GetNode implements TreeStore.get_node.
func (s *Store) GetNode(ctx context.Context, nodeID uuid.UUID) (contextmodel.Node, error) {
	const q = `
		SELECT node_id, parent_id, session_id, role, content, summary, tokens, similarity_to_parent, created_at
		FROM   nodes
		WHERE  node_id = $1`

	var (
		n        contextmodel.Node
		parentID *uuid.UUID
		role     string
	)
	err := s.pool.QueryRow(ctx, q, nodeID).Scan(
		&n.NodeID, &parentID, &n.SessionID, &role, &n.Content, &n.Summary, &n.Tokens, &n.SimilarityToParent, &n.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return contextmodel.Node{}, ErrNodeNotFound
	}
	if err != nil {
		return contextmodel.Node{}, fmt.Errorf("treestore: get node: %w", err)
	}
	n.ParentID = parentID
	n.Role = contextmodel.Role(role)
	return n, nil
}

// SetSummary implements TreeStore.set_summary. It is idempotent: writing the
// same summary twice is a no-op (no update is issued), and writing over
// a different existing summary is permitted but logged.
func (s *Store) SetSummary(ctx context.Context, nodeID uuid.UUID, summary string) error {
	const selectQ = `SELECT summary FROM nodes WHERE node_id = $1`
	var existing *string
	if err := s.pool.QueryRow(ctx, selectQ, nodeID).Scan(&existing); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNodeNotFound
		}
		return fmt.Errorf("treestore: set summary: fetch existing: %w", err)
	}
	if existing != nil && *existing == summary {
		return nil
	}
	if existing != nil {
		slog.Warn("treestore: overwriting existing summary", "node_id", nodeID)
	}

	const updateQ = `UPDATE nodes SET summary = $2 WHERE node_id = $1`
	if _, err := s.pool.Exec(ctx, updateQ, nodeID, summary); err != nil {
		return fmt.Errorf("treestore: set summary: %w", err)
	}
	return nil
}

// ContextChain implements TreeStore.context_chain. It walks parent pointers
// from leafID to the root, yielding summary when present else content, and
// returns the chain root-first. A cycle in the parent chain returns
// ErrCycleDetected.
func (s *Store) ContextChain(ctx context.Context, leafID uuid.UUID) ([]contextmodel.ContextChainEntry, error) {
	var chain []contextmodel.ContextChainEntry
	visited := make(map[uuid.UUID]bool)

	currentID := &leafID
	for currentID != nil {
		if visited[*currentID] {
			return nil, ErrCycleDetected
		}
		visited[*currentID] = true

		node, err := s.GetNode(ctx, *currentID)
		if err != nil {
			return nil, fmt.Errorf("treestore: context chain: %w", err)
		}

		chain = append(chain, contextmodel.ContextChainEntry{
			Role:    node.Role,
			Content: node.EffectiveContent(),
		})
		currentID = node.ParentID
	}

	// Reverse in place: chain was built leaf-first, spec requires root-first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// DeleteSession implements TreeStore.delete_session. Cascades to all nodes
// belonging to sessionID via the nodes table's ON DELETE CASCADE.
func (s *Store) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	const q = `DELETE FROM sessions WHERE session_id = $1`
	if _, err := s.pool.Exec(ctx, q, sessionID); err != nil {
		return fmt.Errorf("treestore: delete session: %w", err)
	}
	return nil
}

// NodesPendingSummary implements coarsegrain.NodeStore.NodesPendingSummary:
// it lists up to limit nodes whose similarity_to_parent exceeded the
// configured coarse-graining threshold (λ) but which still carry no
// summary, for the periodic reconciliation sweep.
func (s *Store) NodesPendingSummary(ctx context.Context, limit int) ([]contextmodel.Node, error) {
	const q = `
		SELECT node_id, parent_id, session_id, role, content, summary, tokens, similarity_to_parent, created_at
		FROM   nodes
		WHERE  summary IS NULL
		  AND  parent_id IS NOT NULL
		  AND  similarity_to_parent > $1
		ORDER  BY created_at
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, s.threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("treestore: nodes pending summary: %w", err)
	}
	defer rows.Close()

	var out []contextmodel.Node
	for rows.Next() {
		var (
			n        contextmodel.Node
			parentID *uuid.UUID
			role     string
		)
		if err := rows.Scan(&n.NodeID, &parentID, &n.SessionID, &role, &n.Content, &n.Summary, &n.Tokens, &n.SimilarityToParent, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("treestore: nodes pending summary: scan: %w", err)
		}
		n.ParentID = parentID
		n.Role = contextmodel.Role(role)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("treestore: nodes pending summary: %w", err)
	}
	return out, nil
}
