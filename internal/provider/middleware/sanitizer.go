package middleware

import (
	"regexp"
	"sort"
	"strings"
)

// Withheld replaces redacted phrases in outbound messages.
const Withheld = "[WITHHELD]"

// Redactor removes verbatim phrases (an owner's private and withheld item
// contents) plus detector matches from text an agent is about to send.
type Redactor struct {
	phrases  []*regexp.Regexp
	detector *Detector
}

// NewRedactor builds a redactor for phrases. Matching is case-insensitive and
// tolerant of whitespace differences; longer phrases are replaced first.
func NewRedactor(phrases []string) *Redactor {
	cleaned := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	sort.SliceStable(cleaned, func(i, j int) bool { return len(cleaned[i]) > len(cleaned[j]) })

	r := &Redactor{detector: NewDetector([]string{"email", "phone", "iban", "credit_card", "api_key", "bearer_token", "password_literal"}, nil)}
	for _, p := range cleaned {
		words := strings.Fields(p)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		r.phrases = append(r.phrases, regexp.MustCompile(`(?i)`+strings.Join(words, `\s+`)))
	}
	return r
}

// Redact returns the filtered text and the number of replacements made.
func (r *Redactor) Redact(text string) (string, int) {
	count := 0
	out := text
	for _, re := range r.phrases {
		n := len(re.FindAllStringIndex(out, -1))
		if n == 0 {
			continue
		}
		count += n
		out = re.ReplaceAllLiteralString(out, Withheld)
	}
	if hits := len(r.detector.Scan(out)); hits > 0 {
		count += hits
		out = r.detector.Redact(out)
	}
	return out, count
}

// QuickRedact redacts sensitive data from text without any phrase list.
func QuickRedact(text string) string {
	return NewDefaultDetector().Redact(text)
}

// MaskSecret partially masks a secret value, showing only the first and last
// few characters. Useful for displaying credential snippets safely.
func MaskSecret(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
