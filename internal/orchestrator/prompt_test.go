package orchestrator

import (
	"strings"
	"testing"

	"github.com/causalfractal/contextengine/pkg/contextmodel"
)

func TestBuildMessages_Ordering(t *testing.T) {
	ancestors := []contextmodel.ContextChainEntry{
		{Role: contextmodel.RoleUser, Content: "first"},
		{Role: contextmodel.RoleAssistant, Content: "second"},
	}
	messages := BuildMessages("You are Harold.", []string{"fact one"}, ancestors, "new question", 0)

	if len(messages) != 4 {
		t.Fatalf("len(messages) = %d, want 4 (system, 2 ancestors, new user)", len(messages))
	}
	if messages[0].Role != string(contextmodel.RoleSystem) {
		t.Errorf("messages[0].Role = %q, want system", messages[0].Role)
	}
	if messages[1].Content != "first" || messages[2].Content != "second" {
		t.Errorf("ancestors out of order: %+v", messages[1:3])
	}
	if messages[3].Role != string(contextmodel.RoleUser) || messages[3].Content != "new question" {
		t.Errorf("messages[3] = %+v, want the new user message", messages[3])
	}
}

func TestBuildMessages_OmitsVerifiedSectionWhenEmpty(t *testing.T) {
	messages := BuildMessages("persona", nil, nil, "hi", 0)
	if strings.Contains(messages[0].Content, "Verified Context") {
		t.Errorf("system message should omit the verified-context header when there are no chunks, got %q", messages[0].Content)
	}
}

func TestBuildMessages_IncludesVerifiedChunks(t *testing.T) {
	messages := BuildMessages("persona", []string{"fact a", "fact b"}, nil, "hi", 0)
	for _, want := range []string{"fact a", "fact b", "Verified Context"} {
		if !strings.Contains(messages[0].Content, want) {
			t.Errorf("system message missing %q:\n%s", want, messages[0].Content)
		}
	}
}

func TestBuildMessages_DefaultsPersonaWhenEmpty(t *testing.T) {
	messages := BuildMessages("", nil, nil, "hi", 0)
	if !strings.Contains(messages[0].Content, "helpful assistant") {
		t.Errorf("expected a default persona line, got %q", messages[0].Content)
	}
}

func TestBuildMessages_AlwaysIncludesGuardrails(t *testing.T) {
	messages := BuildMessages("persona", []string{"fact"}, nil, "hi", 0)
	if !strings.Contains(messages[0].Content, guardrailText) {
		t.Error("system message must always include the guardrail text")
	}
}

func TestBuildMessages_TrimsOldestAncestorsOverBudget(t *testing.T) {
	ancestors := []contextmodel.ContextChainEntry{
		{Role: contextmodel.RoleUser, Content: strings.Repeat("a", 400)},
		{Role: contextmodel.RoleAssistant, Content: strings.Repeat("b", 400)},
		{Role: contextmodel.RoleUser, Content: "recent"},
	}
	messages := BuildMessages("persona", nil, ancestors, "hi", 100)

	if len(messages) != 3 {
		t.Fatalf("len(messages) = %d, want 3 (system, 1 surviving ancestor, new user)", len(messages))
	}
	if messages[1].Content != "recent" {
		t.Errorf("messages[1].Content = %q, want the most recent surviving ancestor", messages[1].Content)
	}
}

func TestBuildMessages_ZeroBudgetDisablesTrimming(t *testing.T) {
	ancestors := []contextmodel.ContextChainEntry{
		{Role: contextmodel.RoleUser, Content: strings.Repeat("a", 4000)},
	}
	messages := BuildMessages("persona", nil, ancestors, "hi", 0)
	if len(messages) != 3 {
		t.Fatalf("len(messages) = %d, want 3 (system, ancestor, new user)", len(messages))
	}
}
