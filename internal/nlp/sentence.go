// Package nlp provides the degraded-mode text analysis primitives the causal
// graph builder and CausalFilter need: sentence segmentation, entity-phrase
// extraction, and fuzzy surface-form deduplication.
//
// No repo in the retrieval pack wraps a Go NLP/NER library — the original
// implementation's spaCy model has no ecosystem equivalent here. This package
// is a deliberate, documented degraded mode: regex/heuristic sentence
// splitting and a proper-noun/consecutive-capitalized-word entity extractor
// stand in for spaCy's statistical sentencizer and named-entity recognizer.
package nlp

import (
	"regexp"
	"strings"
)

// sentenceBoundary matches a run of sentence-ending punctuation followed by
// whitespace; what follows the whitespace is not inspected. It is a
// heuristic, not a trained sentencizer: it does not special-case abbreviations
// such as "Dr." or "e.g.".
var sentenceBoundary = regexp.MustCompile(`([.!?]+)(\s+)`)

// SplitSentences segments text into sentences using punctuation boundaries.
// Consecutive whitespace is treated as a single separator. Empty and
// whitespace-only sentences are discarded.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	raw := sentenceBoundary.Split(text, -1)
	// regexp.Split drops the matched separators (including the punctuation),
	// so recover the terminal punctuation by re-scanning matches in order.
	matches := sentenceBoundary.FindAllStringSubmatch(text, -1)

	sentences := make([]string, 0, len(raw))
	for i, s := range raw {
		s = strings.TrimSpace(s)
		if i < len(matches) {
			s += matches[i][1]
		}
		s = strings.TrimSpace(s)
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}
