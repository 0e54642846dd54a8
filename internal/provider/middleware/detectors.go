package middleware

import (
	"regexp"
	"sort"
	"strings"

	"github.com/KafClaw/PairClaw/internal/config"
)

// DetectorMatch represents a single detection hit.
type DetectorMatch struct {
	Type  string // e.g. "email", "api_key", "override_instructions"
	Value string // the matched text
	Start int    // byte offset in source string
	End   int    // byte offset end
}

// Detector scans text for sensitive data and for instruction-injection
// phrasing in counterpart messages.
type Detector struct {
	sensitive []namedRegex
	injection []namedRegex
}

type namedRegex struct {
	name string
	re   *regexp.Regexp
}

// Built-in PII and secret patterns.
var builtinSensitive = map[string]string{
	"email":            `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`,
	"phone":            `(?:\+\d{1,3}[\s\-]?)?\(?\d{2,4}\)?[\s\-]?\d{3,4}[\s\-]?\d{3,4}\b`,
	"iban":             `\b[A-Z]{2}\d{2}(?:\s?[A-Z0-9]{4}){3,7}\b`,
	"credit_card":      `\b(?:\d{4}[\s\-]?){3}\d{4}\b`,
	"api_key":          `\b(?:sk-[A-Za-z0-9]{20,}|AKIA[A-Z0-9]{16}|ghp_[A-Za-z0-9]{36}|glpat-[A-Za-z0-9\-]{20,})\b`,
	"bearer_token":     `Bearer\s+[A-Za-z0-9\-._~+/]+=*`,
	"password_literal": `(?i)(?:password|passwd|pwd)\s*[:=]\s*\S+`,
}

// Built-in injection patterns. They target text that addresses the reading
// model rather than the counterpart.
var builtinInjection = map[string]string{
	"override_instructions": `(?i)\b(?:ignore|disregard|forget|override|bypass)\b[^.\n]{0,40}\b(?:instructions?|rules|polic(?:y|ies)|prompts?|guidelines|constraints)\b`,
	"role_reassignment":     `(?i)\b(?:you are now|from now on you|act as|pretend (?:to be|you are)|new (?:system )?instructions?)\b`,
	"system_marker":         `(?i)(?:</?\s*(?:system|assistant|instructions?)\s*>|\[\s*(?:system|inst)\s*\]|^\s*system\s*:)`,
	"exfiltration":          `(?i)\b(?:reveal|print|repeat|output|show|tell me)\b[^.\n]{0,40}\b(?:system prompt|private information|hidden|secret|confidential|policies)\b`,
	"forced_decision":       `(?i)\b(?:you must|always|immediately)\s+(?:answer|respond|reply|say|output)\s+(?:with\s+)?["'\x60]?accept\b`,
}

// NewDetector creates a detector for the given sensitive-data types plus any
// custom patterns. Injection patterns are always active.
func NewDetector(sensitiveTypes []string, customPatterns []config.NamedPattern) *Detector {
	d := &Detector{}
	for _, name := range sensitiveTypes {
		pattern, ok := builtinSensitive[name]
		if !ok {
			continue
		}
		d.sensitive = append(d.sensitive, namedRegex{name: name, re: regexp.MustCompile(pattern)})
	}
	for _, cp := range customPatterns {
		re, err := regexp.Compile(cp.Pattern)
		if err != nil {
			continue
		}
		d.sensitive = append(d.sensitive, namedRegex{name: cp.Name, re: re})
	}
	d.injection = compileSorted(builtinInjection)
	return d
}

// NewDefaultDetector creates a detector with every built-in pattern.
func NewDefaultDetector() *Detector {
	names := make([]string, 0, len(builtinSensitive))
	for k := range builtinSensitive {
		names = append(names, k)
	}
	sort.Strings(names)
	return NewDetector(names, nil)
}

func compileSorted(patterns map[string]string) []namedRegex {
	names := make([]string, 0, len(patterns))
	for k := range patterns {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]namedRegex, 0, len(names))
	for _, n := range names {
		out = append(out, namedRegex{name: n, re: regexp.MustCompile(patterns[n])})
	}
	return out
}

// Scan returns all sensitive-data matches found in the text.
func (d *Detector) Scan(text string) []DetectorMatch {
	var matches []DetectorMatch
	for _, nr := range d.sensitive {
		matches = append(matches, findMatches(nr, text)...)
	}
	return matches
}

// ScanInjection returns the injection-pattern matches found in the text.
func (d *Detector) ScanInjection(text string) []DetectorMatch {
	var matches []DetectorMatch
	for _, nr := range d.injection {
		matches = append(matches, findMatches(nr, text)...)
	}
	return matches
}

// HasInjection reports whether text contains any injection pattern.
func (d *Detector) HasInjection(text string) bool {
	for _, nr := range d.injection {
		if nr.re.MatchString(text) {
			return true
		}
	}
	return false
}

// Redact replaces all sensitive matches in the text with [REDACTED:<type>].
func (d *Detector) Redact(text string) string {
	result := text
	for _, nr := range d.sensitive {
		replacement := "[REDACTED:" + strings.ToUpper(nr.name) + "]"
		result = nr.re.ReplaceAllString(result, replacement)
	}
	return result
}

func findMatches(nr namedRegex, text string) []DetectorMatch {
	locs := nr.re.FindAllStringIndex(text, -1)
	matches := make([]DetectorMatch, 0, len(locs))
	for _, loc := range locs {
		matches = append(matches, DetectorMatch{
			Type:  nr.name,
			Value: text[loc[0]:loc[1]],
			Start: loc[0],
			End:   loc[1],
		})
	}
	return matches
}

// ContainsKeywords checks if text contains any of the given keywords (case-insensitive).
func ContainsKeywords(text string, keywords []string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			found = append(found, kw)
		}
	}
	return found
}

// MatchTypes returns the distinct match types in first-seen order.
func MatchTypes(matches []DetectorMatch) []string {
	seen := make(map[string]bool)
	var types []string
	for _, m := range matches {
		if !seen[m.Type] {
			seen[m.Type] = true
			types = append(types, m.Type)
		}
	}
	return types
}
