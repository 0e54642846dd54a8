package negotiation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Judge runs a vanilla dialogue, then re-derives each party's decision with
// an independent pass that sees only the sanitized transcript and that
// party's policies. The judge overrides the agents when the dialogue ended
// on their own decisions.
type Judge struct{}

func (Judge) Variant() string { return VariantJudge }

func (Judge) Negotiate(ctx context.Context, ex *Exchange) (Outcome, error) {
	ex.Dialogue(ctx, presentRaw)
	if ex.CompletedNormally() {
		ex.judge(ctx)
	}
	return ex.Settle(), nil
}

func (ex *Exchange) judge(ctx context.Context) {
	var sb strings.Builder
	for _, t := range ex.Transcript.Turns {
		if t.Sanitized == "" {
			continue
		}
		fmt.Fprintf(&sb, "[%s] %s\n", t.Speaker, t.Sanitized)
	}
	transcript := sb.String()
	if transcript == "" {
		transcript = "(no messages)"
	}

	for _, p := range ex.Parties {
		other := ex.other(p)
		model := ex.judgeModel
		if model == "" {
			model = p.Model
		}
		var verdict Decision
		_, err := ex.Ask(ctx, model, judgePrompt(p.Identity, other.Owner(), other.Summary, transcript), func(s string) error {
			v, err := ParseVerdict(s)
			verdict = v
			return err
		})
		if err != nil {
			ex.stop(p, err, false)
			return
		}
		if verdict != p.Decision {
			slog.Info("Judge overrode agent decision", "attempt", ex.ID, "owner", p.Owner(), "agent", p.Decision, "judge", verdict)
		}
		p.Decision = verdict
		ex.Transcript.append(Turn{
			Speaker:     "judge",
			Decision:    verdict,
			Annotations: []string{"judge_for:" + p.Owner()},
		})
	}
}
