package negotiation

import (
	"context"
	"fmt"
	"strings"
)

// Defense variants, ordered from least to most hardened.
const (
	VariantVanilla    = "vanilla"
	VariantSandwich   = "sandwich"
	VariantSpotlight  = "spotlight"
	VariantPublicInfo = "public_info"
	VariantDualLLM    = "dual_llm"
	VariantJudge      = "judge"
)

// Strategy mediates counterpart content for one attempt. Implementations
// are stateless; everything per attempt lives in the Exchange.
type Strategy interface {
	Variant() string
	Negotiate(ctx context.Context, ex *Exchange) (Outcome, error)
}

var strategies = map[string]Strategy{
	VariantVanilla:    Vanilla{},
	VariantSandwich:   Sandwich{},
	VariantSpotlight:  Spotlight{},
	VariantPublicInfo: PublicInfo{},
	VariantDualLLM:    DualLLM{},
	VariantJudge:      Judge{},
}

var variantRank = map[string]int{
	VariantVanilla:    0,
	VariantSandwich:   1,
	VariantSpotlight:  2,
	VariantPublicInfo: 3,
	VariantDualLLM:    4,
	VariantJudge:      5,
}

var variantAliases = map[string]string{
	"prompt_sandwich":      VariantSandwich,
	"central_judge":        VariantJudge,
	"checking_public_info": VariantPublicInfo,
	"dual":                 VariantDualLLM,
	"dualllm":              VariantDualLLM,
}

// Variants lists the known variants from least to most hardened.
func Variants() []string {
	return []string{VariantVanilla, VariantSandwich, VariantSpotlight, VariantPublicInfo, VariantDualLLM, VariantJudge}
}

// NormalizeVariant canonicalizes a variant name. Unknown names fail with
// ErrUnknownVariant; an empty name stays empty.
func NormalizeVariant(v string) (string, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.NewReplacer("-", "_", " ", "_").Replace(v)
	if v == "" {
		return "", nil
	}
	if alias, ok := variantAliases[v]; ok {
		v = alias
	}
	if _, ok := strategies[v]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownVariant, v)
	}
	return v, nil
}

// Lookup returns the strategy for a canonical variant name.
func Lookup(variant string) (Strategy, error) {
	v, err := NormalizeVariant(variant)
	if err != nil {
		return nil, err
	}
	s, ok := strategies[v]
	if !ok {
		return nil, fmt.Errorf("%w: empty", ErrUnknownVariant)
	}
	return s, nil
}

// Harder returns the more hardened of two variants.
func Harder(a, b string) string {
	if variantRank[b] > variantRank[a] {
		return b
	}
	return a
}
