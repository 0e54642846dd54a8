package negotiation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const (
	maxQuestions = 8
	maxAnswerLen = 200
	// unknownAnswer replaces any answer the privileged model must not read.
	unknownAnswer = "UNKNOWN"
)

const quarantineFraming = "You cannot read the counterpart directly. You only see the answers a quarantined reader " +
	"extracted for your screening questions. Decide from those answers."

// DualLLM keeps raw counterpart text away from the privileged model. A
// quarantined model answers the reader's screening questions about each
// message in schema-checked JSON, and only those answers are shown.
type DualLLM struct{}

func (DualLLM) Variant() string { return VariantDualLLM }

func (DualLLM) Negotiate(ctx context.Context, ex *Exchange) (Outcome, error) {
	for _, p := range ex.Parties {
		p.framing = quarantineFraming
	}
	ex.Dialogue(ctx, presentQuarantined)
	return ex.Settle(), nil
}

type quarantinedAnswers struct {
	Answers []quarantinedAnswer `json:"answers"`
}

type quarantinedAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func presentQuarantined(ctx context.Context, ex *Exchange, reader *Party, content string) (Presented, error) {
	if reader.questions == nil && len(reader.Identity.Questions) > 0 {
		reader.questions = reader.Identity.Questions
		if len(reader.questions) > maxQuestions {
			reader.questions = reader.questions[:maxQuestions]
		}
	}
	if reader.questions == nil {
		raw, err := ex.Ask(ctx, reader.Model, questionsPrompt(reader.Identity), func(s string) error {
			if len(parseLines(s, maxQuestions)) == 0 {
				return fmt.Errorf("%w: no questions", ErrMalformedOutput)
			}
			return nil
		})
		if err != nil {
			// Questions come from the owner's own data: a failure here is a
			// backend failure, never counterpart misbehaviour.
			return Presented{}, fmt.Errorf("screening questions: %v", err)
		}
		reader.questions = parseLines(raw, maxQuestions)
	}
	if strings.TrimSpace(content) == "" {
		return Presented{Text: "(nothing to read)"}, nil
	}

	var parsed quarantinedAnswers
	_, err := ex.Ask(ctx, reader.quarantined, quarantinePrompt(reader.questions, content), func(s string) error {
		parsed = quarantinedAnswers{}
		if err := decodeJSON(s, &parsed); err != nil {
			return err
		}
		return validateAnswers(parsed, len(reader.questions))
	})
	if err != nil {
		return Presented{}, err
	}

	var sb strings.Builder
	withheld := 0
	for i, q := range reader.questions {
		if i > 0 {
			sb.WriteByte('\n')
		}
		answer := strings.TrimSpace(parsed.Answers[i].Answer)
		if ex.detector.HasInjection(answer) {
			answer = unknownAnswer
			withheld++
		}
		fmt.Fprintf(&sb, "Q: %s\nA: %s", q, answer)
	}
	pr := Presented{Text: sb.String(), Annotations: []string{fmt.Sprintf("quarantined_answers:%d", len(parsed.Answers))}}
	if withheld > 0 {
		slog.Warn("Quarantined answers carried instructions", "attempt", ex.ID, "reader", reader.Owner(), "count", withheld)
		pr.Flagged = true
		pr.Annotations = append(pr.Annotations, fmt.Sprintf("quarantined_injection:%d", withheld))
	}
	return pr, nil
}

func validateAnswers(a quarantinedAnswers, want int) error {
	if len(a.Answers) != want {
		return fmt.Errorf("%w: got %d answers for %d questions", ErrMalformedOutput, len(a.Answers), want)
	}
	for i, ans := range a.Answers {
		text := strings.TrimSpace(ans.Answer)
		switch {
		case text == "":
			return fmt.Errorf("%w: answer %d is empty", ErrMalformedOutput, i+1)
		case strings.ContainsAny(text, "\r\n"):
			return fmt.Errorf("%w: answer %d spans lines", ErrMalformedOutput, i+1)
		case len(text) > maxAnswerLen:
			return fmt.Errorf("%w: answer %d too long", ErrMalformedOutput, i+1)
		}
	}
	return nil
}
