package middleware

import (
	"strings"
	"testing"
)

func TestRedactor_Phrases(t *testing.T) {
	r := NewRedactor([]string{"120k EUR", "  ", "Main Street 5"})
	out, n := r.Redact("I earn 120K   eur and live at main street 5.")
	if n != 2 {
		t.Fatalf("expected 2 replacements, got %d (%q)", n, out)
	}
	if out != "I earn [WITHHELD] and live at [WITHHELD]." {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRedactor_LongestPhraseFirst(t *testing.T) {
	r := NewRedactor([]string{"Acme", "Acme Secret Lab"})
	out, _ := r.Redact("I work at Acme Secret Lab")
	if strings.Contains(out, "Secret Lab") {
		t.Fatalf("longer phrase should be removed whole, got %q", out)
	}
}

func TestRedactor_DetectorMatches(t *testing.T) {
	r := NewRedactor(nil)
	out, n := r.Redact("Reach me at bob@example.com")
	if n != 1 || out != "Reach me at [REDACTED:EMAIL]" {
		t.Fatalf("unexpected redaction %q (%d)", out, n)
	}
}

func TestRedactor_CleanText(t *testing.T) {
	r := NewRedactor([]string{"secret project"})
	out, n := r.Redact("I like hiking.")
	if n != 0 || out != "I like hiking." {
		t.Fatalf("clean text changed: %q (%d)", out, n)
	}
}

func TestMaskSecret(t *testing.T) {
	if MaskSecret("short") != "***" {
		t.Error("short secrets should be fully masked")
	}
	if got := MaskSecret("sk-1234567890abcd"); got != "sk-1...abcd" {
		t.Errorf("unexpected mask %q", got)
	}
}
