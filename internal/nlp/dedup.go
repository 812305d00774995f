package nlp

import "github.com/antzucaro/matchr"

// defaultFuzzyDedupThreshold is the minimum Jaro-Winkler similarity at which
// two entity surface forms are considered the same entity.
const defaultFuzzyDedupThreshold = 0.92

// DedupeFuzzy collapses near-duplicate entity surface forms (e.g. "acme
// corp" and "acme corps") using Jaro-Winkler string similarity,
// keeping the first-seen form of each cluster and preserving input order.
// entities is expected to already be lowercased, as returned by
// [ExtractEntities].
func DedupeFuzzy(entities []string) []string {
	kept := make([]string, 0, len(entities))
	for _, candidate := range entities {
		duplicate := false
		for _, existing := range kept {
			if matchr.JaroWinkler(candidate, existing, false) >= defaultFuzzyDedupThreshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, candidate)
		}
	}
	return kept
}
