package causalgraph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// nodeLinkDoc mirrors the exact JSON schema produced by networkx's
// node_link_data (and consumed by node_link_graph) for a plain, directed,
// non-multigraph: {"directed": true, "multigraph": false, "graph": {},
// "nodes": [{"id": ...}], "links": [{"source": ..., "target": ..., ...}]}.
// Matching this schema lets a graph built by the original Python
// implementation remain loadable here, and vice versa.
type nodeLinkDoc struct {
	Directed   bool              `json:"directed"`
	Multigraph bool              `json:"multigraph"`
	Graph      map[string]any    `json:"graph"`
	Nodes      []nodeLinkNode    `json:"nodes"`
	Links      []nodeLinkLink    `json:"links"`
}

type nodeLinkNode struct {
	ID string `json:"id"`
}

type nodeLinkLink struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Mechanism string `json:"mechanism,omitempty"`
	SourceDoc string `json:"source_doc,omitempty"`
}

// MarshalNodeLink serializes g into networkx node-link JSON.
func (g *Graph) MarshalNodeLink() ([]byte, error) {
	doc := nodeLinkDoc{
		Directed:   true,
		Multigraph: false,
		Graph:      map[string]any{},
	}
	for _, id := range g.Nodes() {
		doc.Nodes = append(doc.Nodes, nodeLinkNode{ID: id})
	}
	for _, from := range g.Nodes() {
		for _, edge := range g.Neighbors(from) {
			doc.Links = append(doc.Links, nodeLinkLink{
				Source:    edge.From,
				Target:    edge.To,
				Mechanism: edge.Mechanism,
				SourceDoc: edge.SourceDoc,
			})
		}
	}
	return json.Marshal(doc)
}

// UnmarshalNodeLink parses networkx node-link JSON into a new Graph.
func UnmarshalNodeLink(data []byte) (*Graph, error) {
	var doc nodeLinkDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("causalgraph: unmarshal node-link: %w", err)
	}

	g := New()
	for _, n := range doc.Nodes {
		if g.adjacency[n.ID] == nil {
			g.adjacency[n.ID] = make(map[string]Edge)
		}
	}
	for _, l := range doc.Links {
		g.AddEdge(l.Source, l.Target, l.Mechanism, l.SourceDoc)
	}
	return g, nil
}

// Load reads the node-link graph at path. If path does not exist, Load
// returns an empty graph and a nil error, matching load_graph's
// "No causal graph found. Initializing empty." behavior.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("causalgraph: load %s: %w", path, err)
	}
	g, err := UnmarshalNodeLink(data)
	if err != nil {
		return nil, fmt.Errorf("causalgraph: load %s: %w", path, err)
	}
	return g, nil
}

// Save atomically writes g's node-link JSON to path: it writes to a temp
// file in the same directory, then renames over the destination, so readers
// never observe a partially-written graph.
func Save(path string, g *Graph) error {
	data, err := g.MarshalNodeLink()
	if err != nil {
		return fmt.Errorf("causalgraph: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("causalgraph: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".causal_graph-*.json.tmp")
	if err != nil {
		return fmt.Errorf("causalgraph: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("causalgraph: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("causalgraph: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("causalgraph: rename into place: %w", err)
	}
	return nil
}
