package causalfilter

import (
	"testing"

	"github.com/causalfractal/contextengine/internal/causalgraph"
)

func newAtomicWith(g *causalgraph.Graph) *causalgraph.Atomic {
	a := causalgraph.NewAtomic()
	a.Store(g)
	return a
}

func TestFilter_ScoresByCausalPath(t *testing.T) {
	g := causalgraph.New()
	g.AddEdge("drought", "famine", "causes", "")
	g.AddEdge("famine", "migration", "triggers", "")

	f := New(newAtomicWith(g))

	chunks := []string{
		"Unrelated discussion about weather patterns with no migration.",
		"The famine led to widespread migration across the region.",
		"A note about drought tolerance in crops.",
	}

	got := f.Filter("What caused the drought?", chunks)
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3", len(got))
	}
	if got[0] != chunks[1] && got[0] != chunks[2] {
		t.Errorf("expected a causally-connected chunk to rank first, got %q", got[0])
	}
}

func TestFilter_FallsBackWhenQueryHasNoEntities(t *testing.T) {
	g := causalgraph.New()
	f := New(newAtomicWith(g))

	chunks := []string{"one", "two", "three", "four"}
	got := f.Filter("a an the of", chunks)

	want := []string{"one", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("got = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q (fallback preserves input order)", i, got[i], want[i])
		}
	}
}

func TestFilter_TruncatesToTop3(t *testing.T) {
	g := causalgraph.New()
	f := New(newAtomicWith(g))

	chunks := []string{"Drought one.", "Drought two.", "Drought three.", "Drought four."}
	got := f.Filter("Drought causes problems.", chunks)
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3", len(got))
	}
}

func TestFilter_StableOnTies(t *testing.T) {
	g := causalgraph.New()
	f := New(newAtomicWith(g))

	// No causal paths exist in an empty graph, so every chunk scores 0 and
	// the stable sort must preserve input order.
	chunks := []string{"Drought alpha.", "Drought beta.", "Drought gamma."}
	got := f.Filter("Drought causes crisis.", chunks)

	for i := range chunks {
		if got[i] != chunks[i] {
			t.Errorf("got[%d] = %q, want %q (ties must preserve input order)", i, got[i], chunks[i])
		}
	}
}

func TestSplitChunks_TrimsAndDiscardsEmpty(t *testing.T) {
	input := "first chunk text\n---\n  \n---\nsecond chunk text\n---\n"
	got := SplitChunks(input)
	want := []string{"first chunk text", "second chunk text"}

	if len(got) != len(want) {
		t.Fatalf("got = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
