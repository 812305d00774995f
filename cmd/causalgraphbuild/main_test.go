package main

import (
	"testing"

	"github.com/causalfractal/contextengine/internal/causalgraph"
	"github.com/causalfractal/contextengine/internal/nlp"
)

func TestAddEdgesForSentence_ExtractsCauseEffectPair(t *testing.T) {
	graph := causalgraph.New()
	sentence := "the drought caused severe famine across the region"

	addEdgesForSentence(graph, "doc-1", sentence, "caused")

	if !graph.HasPath("drought", "famine", 1) {
		t.Errorf("expected a drought->famine edge, nodes: %v", graph.Nodes())
	}
}

func TestAddEdgesForSentence_FiltersShortEntities(t *testing.T) {
	graph := causalgraph.New()
	// Both fragments reduce (via fallback) to very short tokens.
	addEdgesForSentence(graph, "doc-1", "it caused go", "caused")

	if graph.NodeCount() != 0 {
		t.Errorf("expected short entities to be filtered, nodes: %v", graph.Nodes())
	}
}

func TestEntitiesOrFallback_UsesExtractorFirst(t *testing.T) {
	got := entitiesOrFallback("severe famine conditions", nlp.LastToken)
	if len(got) == 0 {
		t.Fatal("expected extractor to find entities")
	}
}

func TestEntitiesOrFallback_FallsBackToToken(t *testing.T) {
	got := entitiesOrFallback("a an the", nlp.LastToken)
	if len(got) != 1 || got[0] != "the" {
		t.Errorf("got = %v, want fallback to last token \"the\"", got)
	}
}

func TestProcessWindow_MatchesMultipleVerbsInOneDocument(t *testing.T) {
	graph := causalgraph.New()
	window := "Drought caused famine. Famine triggers migration."

	processWindow(graph, "doc-1", window)

	if !graph.HasPath("drought", "famine", 1) {
		t.Error("missing drought->famine edge")
	}
	if !graph.HasPath("famine", "migration", 1) {
		t.Error("missing famine->migration edge")
	}
}
