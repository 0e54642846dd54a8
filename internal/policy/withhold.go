package policy

import (
	"regexp"
	"strings"

	"github.com/KafClaw/PairClaw/internal/identity"
)

// Rule is one withholding policy reduced to the subject terms it protects.
type Rule struct {
	PolicyID string
	Terms    []string
}

var withholdPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(?:never|don'?t|do not|must not|should not|shouldn'?t)\s+(?:ever\s+)?(?:share|disclose|reveal|mention|tell|give out|expose)\s+(?:anything\s+about\s+|about\s+)?(.+)`),
	regexp.MustCompile(`\bkeep\s+(.+?)\s+(?:private|secret|confidential|hidden|to myself)\b`),
	regexp.MustCompile(`\b(?:withhold|hide|conceal)\s+(.+)`),
	regexp.MustCompile(`^(.+?)\s+(?:is|are)\s+(?:private|secret|confidential|off limits)\b`),
}

var subjectStop = regexp.MustCompile(`[.;:!?]|\bunless\b|\bexcept\b|\bwith\b|\bto\b|\bfrom\b|\bif\b`)

// subjectSplit separates the subjects of one policy sentence; each one
// becomes its own rule.
var subjectSplit = regexp.MustCompile(`,|&|/|\bor\b|\band\b|\bnor\b`)

var wordRe = regexp.MustCompile(`[a-z0-9]+`)

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "my": true, "our": true, "any": true,
	"of": true, "and": true, "or": true, "about": true, "anyone": true,
	"anybody": true, "information": true, "info": true, "details": true,
	"detail": true, "data": true, "me": true, "i": true, "ever": true,
	"never": true, "all": true, "your": true, "their": true, "this": true,
	"that": true, "current": true, "exact": true, "personal": true,
}

// ParseWithholding extracts the withholding rules from natural-language
// policies. Policies that do not restrict disclosure produce no rule.
func ParseWithholding(policies []identity.Item) []Rule {
	var rules []Rule
	for _, p := range policies {
		for _, sentence := range splitSentences(strings.ToLower(p.Content)) {
			for _, re := range withholdPatterns {
				m := re.FindStringSubmatch(sentence)
				if m == nil {
					continue
				}
				subject := m[1]
				if loc := subjectStop.FindStringIndex(subject); loc != nil {
					subject = subject[:loc[0]]
				}
				for _, phrase := range subjectSplit.Split(subject, -1) {
					terms := normalizeTerms(wordRe.FindAllString(phrase, -1))
					if len(terms) > 0 {
						rules = append(rules, Rule{PolicyID: p.ID, Terms: terms})
					}
				}
				break
			}
		}
	}
	return rules
}

// Matches reports whether item falls under the rule. Any subject term naming
// the item ID is a match; content matches need every term of the phrase.
func (r Rule) Matches(item identity.Item) bool {
	if len(r.Terms) == 0 {
		return false
	}
	idWords := wordSet(strings.ToLower(item.ID))
	for _, t := range r.Terms {
		if idWords[t] {
			return true
		}
	}
	contentWords := wordSet(strings.ToLower(item.Content))
	for _, t := range r.Terms {
		if !contentWords[t] {
			return false
		}
	}
	return true
}

func splitSentences(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '\n' || r == '.' || r == ';' || r == '!'
	})
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range wordRe.FindAllString(s, -1) {
		set[fold(w)] = true
	}
	return set
}

func normalizeTerms(words []string) []string {
	seen := make(map[string]bool, len(words))
	var out []string
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if stopWords[w] {
			continue
		}
		w = fold(w)
		if w == "" || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// fold strips simple English plurals so "hobbies" matches "hobby".
func fold(w string) string {
	switch {
	case len(w) > 4 && strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case len(w) > 4 && strings.HasSuffix(w, "sses"):
		return w[:len(w)-2]
	case len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss"):
		return w[:len(w)-1]
	}
	return w
}
