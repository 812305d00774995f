package nlp

import (
	"regexp"
	"strings"
)

// properNounPhrase matches a run of one or more consecutive capitalized
// words (e.g. "New York", "Acme Corp"), the proper-noun stand-in for spaCy's
// PROPN-tagged entity spans.
var properNounPhrase = regexp.MustCompile(`\b[A-Z][a-zA-Z'-]*(?:\s+[A-Z][a-zA-Z'-]*)*\b`)

// wordToken matches a bare alphabetic token, used for the common-noun
// fallback pass below.
var wordToken = regexp.MustCompile(`[A-Za-z][A-Za-z'-]*`)

// stopwords excludes function words from the common-noun fallback pass so it
// does not flood the entity set with "the", "and", "of", etc.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "of": {},
	"to": {}, "in": {}, "on": {}, "at": {}, "by": {}, "for": {}, "with": {},
	"from": {}, "as": {}, "is": {}, "was": {}, "are": {}, "were": {}, "be": {},
	"been": {}, "being": {}, "it": {}, "its": {}, "this": {}, "that": {},
	"these": {}, "those": {}, "he": {}, "she": {}, "they": {}, "we": {},
	"you": {}, "i": {}, "not": {}, "no": {}, "so": {}, "than": {}, "then": {},
	"into": {}, "over": {}, "under": {}, "about": {}, "after": {}, "before": {},
}

// ExtractEntities returns the lowercased entity set for text: named entities
// (consecutive-capitalized-word phrases) union proper-noun/noun lemma
// candidates, mirroring the original's `ent.text.lower()` ∪
// `token.lemma_.lower()` for NOUN/PROPN tokens. Lemmatization itself has no
// stand-in here; tokens are used as-is.
//
// Returns nil if text contains no extractable candidates, matching the
// "NER unavailable or yields no entities" fallback condition callers check
// for.
func ExtractEntities(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	for _, phrase := range properNounPhrase.FindAllString(text, -1) {
		add(phrase)
	}

	for _, tok := range wordToken.FindAllString(text, -1) {
		lower := strings.ToLower(tok)
		if len(lower) <= 2 {
			continue
		}
		if _, skip := stopwords[lower]; skip {
			continue
		}
		add(tok)
	}

	return out
}

// FirstToken returns the lowercased first alphabetic token in text, or "" if
// none exists. Used by the causal-graph builder's fallback rule when entity
// extraction yields nothing for a fragment.
func FirstToken(text string) string {
	tok := wordToken.FindString(text)
	return strings.ToLower(tok)
}

// LastToken returns the lowercased last alphabetic token in text, or "" if
// none exists.
func LastToken(text string) string {
	matches := wordToken.FindAllString(text, -1)
	if len(matches) == 0 {
		return ""
	}
	return strings.ToLower(matches[len(matches)-1])
}
