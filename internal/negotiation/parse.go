package negotiation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	thinkRe  = regexp.MustCompile(`(?s)<think>.*?</think>`)
	rejectRe = regexp.MustCompile(`(?i)\bREJECT(?:ED)?\b`)
	acceptRe = regexp.MustCompile(`(?i)\bACCEPT(?:ED)?\b`)
	contRe   = regexp.MustCompile(`(?i)\bCONTINUE\b`)
)

// stripThinking removes <think> blocks some reasoning models emit.
func stripThinking(s string) string {
	return strings.TrimSpace(thinkRe.ReplaceAllString(s, ""))
}

// ParseReply splits a turn answer into the decision on its first non-empty
// line and the message that follows. REJECT wins over ACCEPT when a line
// mentions both.
func ParseReply(raw string) (Decision, string, error) {
	text := stripThinking(raw)
	if text == "" {
		return "", "", fmt.Errorf("%w: empty answer", ErrMalformedOutput)
	}
	lines := strings.Split(text, "\n")
	first := -1
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			first = i
			break
		}
	}
	head := lines[first]
	var d Decision
	switch {
	case rejectRe.MatchString(head):
		d = Reject
	case acceptRe.MatchString(head):
		d = Accept
	case contRe.MatchString(head):
		d = Continue
	default:
		return "", "", fmt.Errorf("%w: no decision on first line", ErrMalformedOutput)
	}
	msg := strings.TrimSpace(strings.Join(lines[first+1:], "\n"))
	return d, msg, nil
}

// ParseVerdict reads a judge answer: ACCEPT or REJECT on the first line.
func ParseVerdict(raw string) (Decision, error) {
	d, _, err := ParseReply(raw)
	if err != nil {
		return "", err
	}
	if d == Continue {
		return "", fmt.Errorf("%w: verdict must be ACCEPT or REJECT", ErrMalformedOutput)
	}
	return d, nil
}

// decodeJSON decodes the first JSON object in raw into v, rejecting unknown
// fields.
func decodeJSON(raw string, v any) error {
	text := stripThinking(raw)
	i := strings.IndexByte(text, '{')
	if i < 0 {
		return fmt.Errorf("%w: no JSON object", ErrMalformedOutput)
	}
	dec := json.NewDecoder(strings.NewReader(text[i:]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}

// parseLines reads a bulleted or numbered list, one entry per line.
func parseLines(raw string, limit int) []string {
	var out []string
	for _, l := range strings.Split(stripThinking(raw), "\n") {
		l = strings.TrimSpace(l)
		l = strings.TrimLeft(l, "-*•0123456789.) ")
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		out = append(out, l)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
