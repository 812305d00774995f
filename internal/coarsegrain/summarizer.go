// Package coarsegrain implements the engine's asynchronous coarse-graining
// pipeline: once a conversation node's similarity to its parent exceeds the
// threshold, its content is compressed into a durable summary without
// blocking the turn that created the node.
package coarsegrain

import (
	"context"
	"fmt"

	"github.com/causalfractal/contextengine/pkg/contextmodel"
	"github.com/causalfractal/contextengine/pkg/provider/llm"
)

// coarseGrainPrompt is the exact summarization prompt used to compress a
// parent/child node pair into a single durable state for long-term memory.
const coarseGrainPrompt = `Summarize the following interaction into a single concise state for long-term memory:

Parent: %s

Child: %s

Summary:`

// Summarizer compresses a parent/child node pair into a single summary
// string suitable for storage on the child node.
type Summarizer interface {
	Summarize(ctx context.Context, parent, child contextmodel.Node) (string, error)
}

// LLMSummarizer is a [Summarizer] backed by an [llm.Provider].
type LLMSummarizer struct {
	llm llm.Provider
}

// NewLLMSummarizer returns a [Summarizer] that delegates to provider.
func NewLLMSummarizer(provider llm.Provider) *LLMSummarizer {
	return &LLMSummarizer{llm: provider}
}

// Summarize implements [Summarizer].
func (s *LLMSummarizer) Summarize(ctx context.Context, parent, child contextmodel.Node) (string, error) {
	prompt := fmt.Sprintf(coarseGrainPrompt, parent.Content, child.Content)

	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		Messages:    []contextmodel.Message{{Role: "user", Content: prompt}},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("coarsegrain: summarize node %s: %w", child.NodeID, err)
	}
	return resp.Content, nil
}
