package treestore

import "errors"

// Sentinel errors returned by [Store] methods. Callers should use
// errors.Is against these rather than matching on message text.
var (
	// ErrParentNotFound is returned by CreateNode when a non-nil ParentID
	// does not exist.
	ErrParentNotFound = errors.New("treestore: parent not found")

	// ErrSessionMismatch is returned by CreateNode when the parent exists
	// but belongs to a different session.
	ErrSessionMismatch = errors.New("treestore: parent belongs to a different session")

	// ErrCycleDetected is returned by ContextChain when parent pointers form
	// a cycle. This indicates data corruption and is treated as fatal by
	// callers.
	ErrCycleDetected = errors.New("treestore: cycle detected in parent chain")

	// ErrNodeNotFound is returned by GetNode when no node exists with the
	// given id.
	ErrNodeNotFound = errors.New("treestore: node not found")
)
