package negotiation

import "context"

// Vanilla shows counterpart content to the reasoning model as is.
type Vanilla struct{}

func (Vanilla) Variant() string { return VariantVanilla }

func (Vanilla) Negotiate(ctx context.Context, ex *Exchange) (Outcome, error) {
	ex.Dialogue(ctx, presentRaw)
	return ex.Settle(), nil
}

func presentRaw(_ context.Context, _ *Exchange, _ *Party, content string) (Presented, error) {
	return Presented{Text: content}, nil
}
