package treestore_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/causalfractal/contextengine/internal/treestore"
	"github.com/causalfractal/contextengine/pkg/contextmodel"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if CONTEXTENGINE_PG_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("CONTEXTENGINE_PG_DSN")
	if dsn == "" {
		t.Skip("CONTEXTENGINE_PG_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T) *treestore.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)

	for _, stmt := range []string{
		"DROP TABLE IF EXISTS nodes CASCADE",
		"DROP TABLE IF EXISTS sessions CASCADE",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("drop schema %q: %v", stmt, err)
		}
	}
	if err := treestore.Migrate(ctx, pool); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	return treestore.New(pool, nil, 0.40)
}

func TestCreateNode_RootHasZeroSimilarity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sessionID, err := store.CreateSession(ctx, "test session")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	rootID, err := store.CreateNode(ctx, sessionID, nil, contextmodel.RoleUser, "hello", 2)
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	root, err := store.GetNode(ctx, rootID)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if root.SimilarityToParent != 0 {
		t.Errorf("root SimilarityToParent = %v, want 0", root.SimilarityToParent)
	}
	if root.ParentID != nil {
		t.Errorf("root ParentID = %v, want nil", root.ParentID)
	}
}

func TestCreateNodeWithID_PersistsUnderGivenID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sessionID, err := store.CreateSession(ctx, "test session")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	preminted := uuid.New()
	gotID, err := store.CreateNodeWithID(ctx, preminted, sessionID, nil, contextmodel.RoleAssistant, "hello", 2)
	if err != nil {
		t.Fatalf("CreateNodeWithID: %v", err)
	}
	if gotID != preminted {
		t.Fatalf("CreateNodeWithID returned %s, want the pre-minted id %s", gotID, preminted)
	}

	node, err := store.GetNode(ctx, preminted)
	if err != nil {
		t.Fatalf("GetNode(preminted): %v", err)
	}
	if node.NodeID != preminted {
		t.Errorf("node.NodeID = %s, want %s", node.NodeID, preminted)
	}
}

func TestCreateNode_ParentNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sessionID, err := store.CreateSession(ctx, "s")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	bogus := uuid.New()
	_, err = store.CreateNode(ctx, sessionID, &bogus, contextmodel.RoleUser, "hi", 1)
	if !errors.Is(err, treestore.ErrParentNotFound) {
		t.Fatalf("err = %v, want ErrParentNotFound", err)
	}
}

func TestCreateNode_SessionMismatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sessionA, _ := store.CreateSession(ctx, "a")
	sessionB, _ := store.CreateSession(ctx, "b")

	parentID, err := store.CreateNode(ctx, sessionA, nil, contextmodel.RoleUser, "root", 1)
	if err != nil {
		t.Fatalf("CreateNode parent: %v", err)
	}

	_, err = store.CreateNode(ctx, sessionB, &parentID, contextmodel.RoleUser, "child", 1)
	if !errors.Is(err, treestore.ErrSessionMismatch) {
		t.Fatalf("err = %v, want ErrSessionMismatch", err)
	}
}

func TestContextChain_RootFirstOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sessionID, _ := store.CreateSession(ctx, "s")
	root, err := store.CreateNode(ctx, sessionID, nil, contextmodel.RoleUser, "root message", 2)
	if err != nil {
		t.Fatalf("CreateNode root: %v", err)
	}
	child, err := store.CreateNode(ctx, sessionID, &root, contextmodel.RoleAssistant, "child message", 2)
	if err != nil {
		t.Fatalf("CreateNode child: %v", err)
	}
	grandchild, err := store.CreateNode(ctx, sessionID, &child, contextmodel.RoleUser, "grandchild message", 2)
	if err != nil {
		t.Fatalf("CreateNode grandchild: %v", err)
	}

	chain, err := store.ContextChain(ctx, grandchild)
	if err != nil {
		t.Fatalf("ContextChain: %v", err)
	}
	if len(chain) != 3 {
		t.Fatalf("len(chain) = %d, want 3", len(chain))
	}
	if chain[0].Content != "root message" || chain[2].Content != "grandchild message" {
		t.Errorf("chain not root-first: %+v", chain)
	}
}

func TestContextChain_UsesSummaryOverContent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sessionID, _ := store.CreateSession(ctx, "s")
	root, _ := store.CreateNode(ctx, sessionID, nil, contextmodel.RoleUser, "root", 1)
	child, err := store.CreateNode(ctx, sessionID, &root, contextmodel.RoleAssistant, "full verbatim content", 5)
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	if err := store.SetSummary(ctx, child, "compact summary"); err != nil {
		t.Fatalf("SetSummary: %v", err)
	}

	chain, err := store.ContextChain(ctx, child)
	if err != nil {
		t.Fatalf("ContextChain: %v", err)
	}
	if chain[1].Content != "compact summary" {
		t.Errorf("chain[1].Content = %q, want the summary", chain[1].Content)
	}
}

func TestSetSummary_IdempotentNoOp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sessionID, _ := store.CreateSession(ctx, "s")
	nodeID, _ := store.CreateNode(ctx, sessionID, nil, contextmodel.RoleUser, "x", 1)

	if err := store.SetSummary(ctx, nodeID, "first"); err != nil {
		t.Fatalf("SetSummary 1: %v", err)
	}
	if err := store.SetSummary(ctx, nodeID, "first"); err != nil {
		t.Fatalf("SetSummary repeat: %v", err)
	}

	node, err := store.GetNode(ctx, nodeID)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if node.Summary == nil || *node.Summary != "first" {
		t.Errorf("Summary = %v, want \"first\"", node.Summary)
	}
}

func TestDeleteSession_CascadesNodes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sessionID, _ := store.CreateSession(ctx, "s")
	nodeID, _ := store.CreateNode(ctx, sessionID, nil, contextmodel.RoleUser, "x", 1)

	if err := store.DeleteSession(ctx, sessionID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}

	_, err := store.GetNode(ctx, nodeID)
	if !errors.Is(err, treestore.ErrNodeNotFound) {
		t.Fatalf("GetNode after delete: err = %v, want ErrNodeNotFound", err)
	}
}
