// Package causalfilter reranks vector-retrieved candidate chunks by causal
// relevance to the query, using paths in a [causalgraph.Graph].
//
// Grounded on original_source/app/services/causal_service.py's
// verify_mechanisms: the top-3/stable-sort/bidirectional-path variant, not
// app/services/causal_filter.py's divergent "return all chunks" variant.
package causalfilter

import (
	"sort"
	"strings"

	"github.com/causalfractal/contextengine/internal/causalgraph"
	"github.com/causalfractal/contextengine/internal/nlp"
)

// maxPathHops bounds the bidirectional BFS used to test path existence
// between a query entity and a candidate chunk's entity. The original's
// nx.has_path is unbounded; this tightening does not change behavior for the
// graphs the offline builder produces, where entity chains extracted from a
// single sentence rarely exceed a handful of hops.
const maxPathHops = 6

// resultCount is the fixed number of chunks verify_mechanisms returns.
const resultCount = 3

// Filter reranks candidate chunks by causal relevance to query against the
// causal graph served by graph.
type Filter struct {
	graph *causalgraph.Atomic
}

// New returns a Filter reading graph snapshots from graph.
func New(graph *causalgraph.Atomic) *Filter {
	return &Filter{graph: graph}
}

// scoredChunk pairs a candidate chunk with its causal relevance score,
// retaining its original input position for the stable-sort tiebreak.
type scoredChunk struct {
	text  string
	score int
	index int
}

// Filter reranks chunks by causal relevance to query and returns the top 3.
//
// Algorithm: extract the query's entity set; for each candidate chunk,
// extract its own entity set and score it by the number of (query entity,
// chunk entity) pairs connected by a directed path in either direction.
// Chunks are sorted by score descending, ties broken by original input
// order (stable), and the top 3 are returned.
//
// Falls back to the first 3 input chunks unchanged when entity extraction
// yields nothing for the query — the "NER unavailable" condition from the
// original, degraded here to "no entity candidates found" since this
// package has no notion of an unavailable extractor.
func (f *Filter) Filter(query string, chunks []string) []string {
	queryEntities := nlp.ExtractEntities(query)
	if len(queryEntities) == 0 {
		return firstN(chunks, resultCount)
	}

	graph := f.graph.Load()

	scored := make([]scoredChunk, len(chunks))
	for i, chunk := range chunks {
		scored[i] = scoredChunk{
			text:  chunk,
			score: scoreChunk(graph, queryEntities, chunk),
			index: i,
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	n := resultCount
	if n > len(scored) {
		n = len(scored)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = scored[i].text
	}
	return out
}

// scoreChunk counts (query entity, chunk entity) pairs connected by a
// directed path in either direction within graph.
func scoreChunk(graph *causalgraph.Graph, queryEntities []string, chunk string) int {
	chunkEntities := nlp.ExtractEntities(chunk)
	score := 0
	for _, q := range queryEntities {
		for _, c := range chunkEntities {
			if !graph.HasNode(q) || !graph.HasNode(c) {
				continue
			}
			if graph.HasPath(q, c, maxPathHops) || graph.HasPath(c, q, maxPathHops) {
				score++
			}
		}
	}
	return score
}

func firstN(chunks []string, n int) []string {
	if n > len(chunks) {
		n = len(chunks)
	}
	out := make([]string, n)
	copy(out, chunks[:n])
	return out
}

// SplitChunks splits a VectorIndex query result on the literal delimiter
// "---" and trims whitespace, discarding empty fragments — the input format
// the orchestrator uses to build the candidate list passed to Filter.
func SplitChunks(vectorIndexResult string) []string {
	parts := strings.Split(vectorIndexResult, "---")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
