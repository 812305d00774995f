// Command causalgraphbuild is the offline causal-graph builder: a one-shot
// batch job, not part of the HTTP service, that scans every KnowledgeDocument
// for "X causes Y" patterns and (re)writes the serialized causal graph.
//
// Grounded on original_source/scripts/build_causal_graph.py, preserved here
// as its own binary since the original shows it as a distinct,
// separately-invoked script rather than a subcommand of the service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/causalfractal/contextengine/internal/causalgraph"
	"github.com/causalfractal/contextengine/internal/config"
	"github.com/causalfractal/contextengine/internal/nlp"
)

// causalVerbs is the exact verb-phrase list from the original: a sentence
// containing any of these is treated as expressing a causal relationship.
var causalVerbs = []string{
	"lead to", "leads to", "caused", "causes", "resulted in", "results in",
	"triggered", "triggers", "produced", "produces",
}

// windowSize is the fixed-size text window processed per iteration, matching
// the original's chunk_size = 50000 (avoids loading an entire document's
// sentence tree into memory at once).
const windowSize = 50_000

// minEntityLen is the length at or below which an extracted entity string is
// discarded, per spec.md §4.3's "|c| > 2 and |e| > 2" rule.
const minEntityLen = 2

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "causalgraphbuild: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "causalgraphbuild: %v\n", err)
		}
		return 1
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		return 1
	}
	defer pool.Close()

	graph, err := buildGraph(ctx, pool)
	if err != nil {
		slog.Error("build causal graph", "error", err)
		return 1
	}

	if err := causalgraph.Save(cfg.CausalGraph.Path, graph); err != nil {
		slog.Error("save causal graph", "error", err)
		return 1
	}

	slog.Info("causal graph construction complete",
		"path", cfg.CausalGraph.Path,
		"nodes", graph.NodeCount(),
	)
	return 0
}

// buildGraph reads every knowledge_docs row and extracts causal edges from
// its content, following the original's windowed sentence scan.
func buildGraph(ctx context.Context, pool *pgxpool.Pool) (*causalgraph.Graph, error) {
	rows, err := pool.Query(ctx, `SELECT doc_id, content FROM knowledge_docs`)
	if err != nil {
		return nil, fmt.Errorf("query knowledge_docs: %w", err)
	}

	type doc struct {
		DocID   string
		Content string
	}
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (doc, error) {
		var d doc
		err := row.Scan(&d.DocID, &d.Content)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan knowledge_docs: %w", err)
	}

	slog.Info("processing documents for causal links", "count", len(docs))

	graph := causalgraph.New()
	for _, d := range docs {
		processDocument(graph, d.DocID, d.Content)
	}
	return graph, nil
}

// processDocument scans text in fixed windowSize windows, extracting causal
// edges into graph.
func processDocument(graph *causalgraph.Graph, docID, text string) {
	for start := 0; start < len(text); start += windowSize {
		end := start + windowSize
		if end > len(text) {
			end = len(text)
		}
		processWindow(graph, docID, text[start:end])
	}
}

func processWindow(graph *causalgraph.Graph, docID, window string) {
	for _, sentence := range nlp.SplitSentences(window) {
		lower := strings.ToLower(sentence)
		for _, verb := range causalVerbs {
			if !strings.Contains(lower, verb) {
				continue
			}
			addEdgesForSentence(graph, docID, lower, verb)
		}
	}
}

// addEdgesForSentence splits sentence on verb into (cause, effect) fragments
// and inserts one edge per (cause entity, effect entity) pair, matching the
// original's nested-loop cross product.
func addEdgesForSentence(graph *causalgraph.Graph, docID, sentence, verb string) {
	parts := strings.SplitN(sentence, verb, 2)
	if len(parts) != 2 {
		return
	}
	causeFragment := strings.TrimSpace(parts[0])
	effectFragment := strings.TrimSpace(parts[1])

	causeEntities := entitiesOrFallback(causeFragment, nlp.LastToken)
	effectEntities := entitiesOrFallback(effectFragment, nlp.FirstToken)

	for _, c := range causeEntities {
		for _, e := range effectEntities {
			if len(c) > minEntityLen && len(e) > minEntityLen {
				graph.AddEdge(c, e, verb, docID)
			}
		}
	}
}

// entitiesOrFallback extracts entities from fragment, falling back to a
// single token (selected by fallback) when extraction yields nothing — the
// original's "cause_entities = [...] or [cause_text.split()[-1]]" rule.
func entitiesOrFallback(fragment string, fallback func(string) string) []string {
	if entities := nlp.ExtractEntities(fragment); len(entities) > 0 {
		return entities
	}
	if tok := fallback(fragment); tok != "" {
		return []string{tok}
	}
	return nil
}
