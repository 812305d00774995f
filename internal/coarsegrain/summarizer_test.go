package coarsegrain_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/causalfractal/contextengine/internal/coarsegrain"
	"github.com/causalfractal/contextengine/pkg/contextmodel"
	"github.com/causalfractal/contextengine/pkg/provider/llm"
	"github.com/causalfractal/contextengine/pkg/provider/llm/mock"
)

func TestLLMSummarizer_FormatsPrompt(t *testing.T) {
	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "compact summary"},
	}
	s := coarsegrain.NewLLMSummarizer(provider)

	parent := contextmodel.Node{NodeID: uuid.New(), Content: "parent content"}
	child := contextmodel.Node{NodeID: uuid.New(), Content: "child content"}

	summary, err := s.Summarize(context.Background(), parent, child)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary != "compact summary" {
		t.Errorf("summary = %q", summary)
	}

	if len(provider.CompleteCalls) != 1 {
		t.Fatalf("Complete called %d times, want 1", len(provider.CompleteCalls))
	}
	prompt := provider.CompleteCalls[0].Req.Messages[0].Content
	if !strings.Contains(prompt, "parent content") || !strings.Contains(prompt, "child content") {
		t.Errorf("prompt missing parent/child content: %q", prompt)
	}
}

func TestLLMSummarizer_PropagatesError(t *testing.T) {
	provider := &mock.Provider{CompleteErr: errors.New("boom")}
	s := coarsegrain.NewLLMSummarizer(provider)

	_, err := s.Summarize(context.Background(), contextmodel.Node{}, contextmodel.Node{NodeID: uuid.New()})
	if err == nil {
		t.Fatal("expected an error")
	}
}
