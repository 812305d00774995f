package coarsegrain

import (
	"context"

	"github.com/google/uuid"

	"github.com/causalfractal/contextengine/pkg/contextmodel"
)

// NodeStore is the slice of TreeStore that coarse-graining needs: reading a
// node and its parent, and writing back a summary. Defined here rather than
// imported from the treestore package so this package depends only on the
// shape of data it actually touches.
type NodeStore interface {
	GetNode(ctx context.Context, nodeID uuid.UUID) (contextmodel.Node, error)

	// SetSummary idempotently attaches summary to nodeID. Implementations
	// must treat a node that already carries a summary as a no-op success,
	// since a node may be scheduled more than once.
	SetSummary(ctx context.Context, nodeID uuid.UUID, summary string) error

	// NodesPendingSummary lists nodes whose SimilarityToParent exceeds
	// the coarse-graining threshold but which still have no Summary. Used
	// by the periodic reconciliation sweep, not the hot path.
	NodesPendingSummary(ctx context.Context, limit int) ([]contextmodel.Node, error)
}
