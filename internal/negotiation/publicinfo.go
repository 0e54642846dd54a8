package negotiation

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/KafClaw/PairClaw/internal/identity"
)

// PublicInfo extracts the factual claims in each counterpart message and
// keeps only those that match the claimant's stored public information.
// Messages that trip the injection detector are excluded entirely.
type PublicInfo struct{}

func (PublicInfo) Variant() string { return VariantPublicInfo }

func (PublicInfo) Negotiate(ctx context.Context, ex *Exchange) (Outcome, error) {
	for _, p := range ex.Parties {
		p.framing = "Counterpart content has been replaced by the statements a verifier could confirm " +
			"against the counterpart's stored public profile."
	}
	ex.Dialogue(ctx, presentVerified)
	return ex.Settle(), nil
}

// Claim is one factual statement extracted from counterpart content.
type Claim struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type claimSet struct {
	Claims []Claim `json:"claims"`
}

func presentVerified(ctx context.Context, ex *Exchange, reader *Party, content string) (Presented, error) {
	claimant := ex.other(reader)
	if ex.detector.HasInjection(content) {
		slog.Warn("Counterpart content excluded by injection detector", "attempt", ex.ID, "from", claimant.Owner())
		return Presented{
			Text:        "[message excluded: manipulation attempt detected]",
			Annotations: []string{"flagged:injection_excluded"},
			Flagged:     true,
		}, nil
	}
	if strings.TrimSpace(content) == "" {
		return Presented{Text: "(no verifiable statements)"}, nil
	}

	model := ex.judgeModel
	if model == "" {
		model = reader.Model
	}
	var parsed claimSet
	_, err := ex.Ask(ctx, model, claimsPrompt(claimant.Owner(), content), func(s string) error {
		parsed = claimSet{}
		if err := decodeJSON(s, &parsed); err != nil {
			return err
		}
		for i, c := range parsed.Claims {
			if strings.TrimSpace(c.Field) == "" || strings.TrimSpace(c.Value) == "" {
				return fmt.Errorf("%w: claim %d incomplete", ErrMalformedOutput, i+1)
			}
		}
		return nil
	})
	if err != nil {
		return Presented{}, err
	}

	verified, excluded := CrossCheck(claimant.Identity.Public, parsed.Claims)
	pr := Presented{
		Annotations: []string{fmt.Sprintf("claims:%d verified:%d excluded:%d", len(parsed.Claims), len(verified), len(excluded))},
		Flagged:     len(excluded) > 0,
	}
	if len(excluded) > 0 {
		fields := make([]string, 0, len(excluded))
		for _, c := range excluded {
			fields = append(fields, c.Field)
		}
		slog.Warn("Unverified claims excluded", "attempt", ex.ID, "from", claimant.Owner(), "fields", fields)
	}
	if len(verified) == 0 {
		pr.Text = "(no verifiable statements)"
		return pr, nil
	}
	var sb strings.Builder
	for i, c := range verified {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "- %s: %s", c.Field, c.Value)
	}
	pr.Text = sb.String()
	return pr, nil
}

// CrossCheck splits claims into those supported by stored and the rest. A
// claim is supported when every word of its value appears in the stored item
// named by its field, or in any stored item when no item has that name.
func CrossCheck(stored []identity.Item, claims []Claim) (verified, excluded []Claim) {
	for _, c := range claims {
		if claimSupported(stored, c) {
			verified = append(verified, c)
		} else {
			excluded = append(excluded, c)
		}
	}
	return verified, excluded
}

func claimSupported(stored []identity.Item, c Claim) bool {
	want := claimTokens(c.Value)
	if len(want) == 0 {
		return false
	}
	candidates := stored
	for _, it := range stored {
		if strings.EqualFold(strings.TrimSpace(it.ID), strings.TrimSpace(c.Field)) {
			candidates = []identity.Item{it}
			break
		}
	}
	for _, it := range candidates {
		have := make(map[string]bool)
		for _, w := range claimTokens(it.Content) {
			have[w] = true
		}
		ok := true
		for _, w := range want {
			if !have[w] {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

var claimWord = regexp.MustCompile(`[a-z0-9]+`)

func claimTokens(s string) []string {
	words := claimWord.FindAllString(strings.ToLower(s), -1)
	out := words[:0]
	for _, w := range words {
		if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
			w = strings.TrimSuffix(w, "s")
		}
		out = append(out, w)
	}
	return out
}
