// Package security implements the default Security collaborator: pattern-
// based prompt-injection and SQL-injection detection plus HTML sanitization.
//
// spec.md names Security.check as an external collaborator interface only,
// out of core scope, with no implementation requirement. This package
// supplements that with a reference implementation grounded on
// original_source/app/services/security_service.py, registered as the
// default wiring so the service is runnable end-to-end while remaining
// fully swappable.
package security

import (
	"context"
	"html"
	"regexp"
	"strings"
)

// blockThreshold mirrors the original's confidence-0.8 block rule from
// original_source/app/routers/chat.py: a prompt-injection score above this
// threshold marks the input unsafe.
const blockThreshold = 0.8

// CheckResult is the outcome of running Check against a piece of text.
type CheckResult struct {
	OK             bool
	InjectionScore float64
	SQLInjection   bool
	SanitizedText  string
}

// Checker implements the Security collaborator.
type Checker struct{}

// New returns a ready-to-use Checker. It holds no state.
func New() *Checker {
	return &Checker{}
}

// Check sanitizes text and scores it for prompt-injection and SQL-injection
// patterns. OK is false when either the injection confidence exceeds
// [blockThreshold] or a SQL-injection pattern matches.
func (c *Checker) Check(_ context.Context, text string) (CheckResult, error) {
	sanitized := sanitize(text)
	sqlInjection := detectSQLInjection(text)
	score := detectPromptInjection(text)

	return CheckResult{
		OK:             !sqlInjection && score <= blockThreshold,
		InjectionScore: score,
		SQLInjection:   sqlInjection,
		SanitizedText:  sanitized,
	}, nil
}

var xssPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
	regexp.MustCompile(`(?i)<iframe`),
	regexp.MustCompile(`(?i)<object`),
	regexp.MustCompile(`(?i)<embed`),
}

// sanitize strips obvious script-like fragments, HTML-escapes the remainder,
// and collapses whitespace — the three-step pipeline from the original's
// sanitize_input.
func sanitize(text string) string {
	if text == "" {
		return ""
	}
	sanitized := text
	for _, pattern := range xssPatterns {
		sanitized = pattern.ReplaceAllString(sanitized, "")
	}
	sanitized = html.EscapeString(sanitized)
	return strings.Join(strings.Fields(sanitized), " ")
}

var sqlInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|EXEC|UNION)\b`),
	regexp.MustCompile(`(--|#|/\*|\*/)`),
	regexp.MustCompile(`(?i)\bOR\b\s+\d+\s*=\s*\d+`),
	regexp.MustCompile(`(?i)\bAND\b\s+\d+\s*=\s*\d+`),
	regexp.MustCompile(`(?i);\s*(SELECT|INSERT|UPDATE|DELETE|DROP)`),
	regexp.MustCompile(`(?i)'\s*(OR|AND)\s*'`),
	regexp.MustCompile(`(?i)(SLEEP\s*\(|BENCHMARK\s*\(|WAITFOR\s+DELAY)`),
}

// detectSQLInjection reports whether text matches any known SQL-injection
// pattern.
func detectSQLInjection(text string) bool {
	if text == "" {
		return false
	}
	for _, pattern := range sqlInjectionPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// promptInjectionPattern pairs a regex with the confidence it contributes
// when matched, ported verbatim from the original's PROMPT_INJECTION_PATTERNS.
type promptInjectionPattern struct {
	pattern    *regexp.Regexp
	confidence float64
}

var promptInjectionPatterns = []promptInjectionPattern{
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`), 0.9},
	{regexp.MustCompile(`(?i)disregard\s+(all\s+)?(your\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`), 0.9},
	{regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above|everything)\s+(instructions?|prompts?|rules?)?`), 0.9},
	{regexp.MustCompile(`(?i)you\s+are\s+(now|actually)\s+`), 0.7},
	{regexp.MustCompile(`(?i)pretend\s+(to\s+be|you\s+are)`), 0.7},
	{regexp.MustCompile(`(?i)act\s+as\s+(if\s+)?(you\s+)?(are|were|a)`), 0.7},
	{regexp.MustCompile(`(?i)roleplay\s+as`), 0.6},
	{regexp.MustCompile(`(?i)(reveal|show|display|output|tell\s+me)\s+(your\s+)?(system\s+)?(prompt|instructions)`), 0.9},
	{regexp.MustCompile(`(?i)what\s+(are|is)\s+your\s+(system\s+)?(prompt|instructions)`), 0.8},
	{regexp.MustCompile(`(?i)print\s+your\s+(initial|system)\s+prompt`), 0.9},
	{regexp.MustCompile(`(?i)DAN\s*mode`), 0.95},
	{regexp.MustCompile(`(?i)developer\s+mode`), 0.8},
	{regexp.MustCompile(`(?i)bypass\s+(all\s+)?(safety|content|filter)`), 0.9},
	{regexp.MustCompile(`(?i)unlock\s+(hidden\s+)?capabilities`), 0.9},
	{regexp.MustCompile(`(?i)remove\s+(all\s+)?restrictions`), 0.8},
	{regexp.MustCompile(`(?i)base64|\\x[0-9a-f]{2}|&#x?[0-9a-f]+;`), 0.5},
	{regexp.MustCompile("(?i)```system|<\\|system\\|>|\\[SYSTEM\\]"), 0.9},
}

// detectPromptInjection returns the highest confidence among matched
// patterns, boosted by 0.1 per extra match beyond the first two — the
// original's "len(matched) > 2" escalation rule.
func detectPromptInjection(text string) float64 {
	if text == "" {
		return 0
	}

	var maxConfidence float64
	matches := 0
	for _, p := range promptInjectionPatterns {
		if p.pattern.MatchString(text) {
			matches++
			if p.confidence > maxConfidence {
				maxConfidence = p.confidence
			}
		}
	}

	if matches > 2 {
		maxConfidence += 0.1 * float64(matches-2)
		if maxConfidence > 1.0 {
			maxConfidence = 1.0
		}
	}
	return maxConfidence
}
