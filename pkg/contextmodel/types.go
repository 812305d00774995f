// Package contextmodel defines the shared types used across the context
// engine's packages.
//
// These types form the lingua franca between providers, the tree store, the
// vector index, the causal graph, and the orchestrator. They are
// intentionally minimal — each package defines its own internal types, but
// cross-cutting data structures live here to avoid circular imports.
package contextmodel

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user", "assistant", or "tool".
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name (for multi-speaker contexts).
	Name string

	// ToolCalls contains any tool invocations requested by the assistant.
	ToolCalls []ToolCall

	// ToolCallID is set when Role is "tool", identifying which tool call this responds to.
	ToolCallID string
}

// ToolCall represents a tool/function invocation requested by the LLM.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDefinition describes a tool that can be offered to an LLM.
type ToolDefinition struct {
	Name                string
	Description         string
	Parameters          map[string]any
	EstimatedDurationMs int
	MaxDurationMs       int
	Idempotent          bool
	CacheableSeconds    int
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	ContextWindow       int
	MaxOutputTokens     int
	SupportsToolCalling bool
	SupportsVision      bool
	SupportsStreaming   bool
}

// Role identifies who produced a Node's content.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Node is a single entry in a session's fractal conversation tree.
type Node struct {
	NodeID             uuid.UUID
	ParentID           *uuid.UUID
	SessionID          uuid.UUID
	Role               Role
	Content            string
	Summary            *string
	Tokens             int
	SimilarityToParent float64
	CreatedAt          time.Time
}

// EffectiveContent returns Summary when present, Content otherwise, per the
// context-assembly rule: a node with a summary supersedes its raw content.
func (n Node) EffectiveContent() string {
	if n.Summary != nil {
		return *n.Summary
	}
	return n.Content
}

// Session owns a set of Nodes.
type Session struct {
	SessionID uuid.UUID
	CreatedAt time.Time
	Name      string
}

// KnowledgeDocument is an uploaded source document, chunked and indexed into
// the VectorIndex.
type KnowledgeDocument struct {
	DocID      string
	Filename   string
	Content    string
	UploadedAt time.Time
}

// ChunkMetadata is the metadata attached to each VectorChunk.
type ChunkMetadata struct {
	Filename string
	SourceID string
}

// VectorChunk is a single indexed fragment of a KnowledgeDocument.
type VectorChunk struct {
	ChunkID  string
	Text     string
	Metadata ChunkMetadata
}

// ContextChainEntry is a single role/content pair returned by
// TreeStore.ContextChain, root-first.
type ContextChainEntry struct {
	Role    Role
	Content string
}
