package negotiation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/KafClaw/PairClaw/internal/identity"
	"github.com/KafClaw/PairClaw/internal/provider"
	"github.com/KafClaw/PairClaw/internal/provider/middleware"
)

// Party is one side of an attempt, built from a snapshot of its identity.
type Party struct {
	Identity *identity.Identity
	Model    string
	// quarantined reads raw counterpart text under the dual LLM variant.
	quarantined string
	// Summary is the sanitized public summary this party discloses.
	Summary  string
	Decision Decision

	redactor *middleware.Redactor
	// profile is the counterpart summary as presented to this party.
	profile string
	history []string
	// framing and closing wrap the conversation in the turn prompt.
	framing   string
	closing   string
	questions []string
}

// Owner returns the party's owner ID.
func (p *Party) Owner() string { return p.Identity.OwnerID }

// Presented is counterpart content as one reader will see it.
type Presented struct {
	Text        string
	Annotations []string
	Flagged     bool
}

// Presenter mediates content from reader's counterpart before reader's model
// sees it. An ErrMalformedOutput error becomes an implicit REJECT by reader.
type Presenter func(ctx context.Context, ex *Exchange, reader *Party, content string) (Presented, error)

type ending int

const (
	endNone ending = iota
	endDecided
	endTurnBound
	endFailed
)

// Exchange is the mutable state of one attempt. It is owned by a single
// goroutine for its lifetime.
type Exchange struct {
	ID         string
	Parties    [2]*Party // initiator first
	Transcript Transcript

	state         State
	ended         ending
	flagged       int
	maxTurns      int
	maxRetries    int
	turnTimeout   time.Duration
	judgeModel    string
	spotlightMode string
	backend       Backend
	detector      *middleware.Detector
	variant       string
	started       time.Time
}

// State returns the attempt state.
func (ex *Exchange) State() State { return ex.state }

// CompletedNormally reports whether the dialogue ended on the agents' own
// decisions rather than on the turn bound or a failure.
func (ex *Exchange) CompletedNormally() bool { return ex.ended == endDecided }

func (ex *Exchange) other(p *Party) *Party {
	if ex.Parties[0] == p {
		return ex.Parties[1]
	}
	return ex.Parties[0]
}

func (ex *Exchange) transition(to State) {
	if !CanTransition(ex.state, to) {
		slog.Error("Invalid negotiation transition", "attempt", ex.ID, "from", ex.state, "to", to)
		return
	}
	ex.state = to
}

// Ask calls model with prompt, retrying up to maxRetries times. validate
// rejects malformed answers, which count as failures. A guard block is not
// retried.
func (ex *Exchange) Ask(ctx context.Context, model, prompt string, validate func(string) error) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= ex.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		callCtx, cancel := context.WithTimeout(ctx, ex.turnTimeout)
		raw, err := ex.backend.Invoke(callCtx, model, prompt)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if errors.Is(err, provider.ErrPromptBlocked) {
				return "", err
			}
			lastErr = err
			slog.Debug("Model call failed, retrying", "attempt", ex.ID, "model", model, "try", attempt+1, "error", err)
			continue
		}
		if validate != nil {
			if err := validate(raw); err != nil {
				lastErr = err
				slog.Debug("Model answer rejected, retrying", "attempt", ex.ID, "model", model, "try", attempt+1, "error", err)
				continue
			}
		}
		return raw, nil
	}
	return "", lastErr
}

// Dialogue runs the bounded turn loop. present mediates every piece of
// counterpart content, starting with each side's public summary.
func (ex *Exchange) Dialogue(ctx context.Context, present Presenter) {
	for _, p := range ex.Parties {
		pr, err := present(ctx, ex, p, ex.other(p).Summary)
		if err != nil {
			ex.stop(p, err, true)
			return
		}
		p.profile = pr.Text
		ex.observe(pr)
	}
	ex.transition(StateExchanging)

	for turn := 0; turn < ex.maxTurns; turn++ {
		speaker := ex.Parties[turn%2]
		listener := ex.other(speaker)

		var (
			decision Decision
			msg      string
		)
		raw, err := ex.Ask(ctx, speaker.Model, turnPrompt(ex, speaker, turn), func(s string) error {
			d, m, err := ParseReply(s)
			decision, msg = d, m
			return err
		})
		if err != nil {
			ex.stop(speaker, err, false)
			return
		}

		sanitized, n := speaker.redactor.Redact(msg)
		t := ex.Transcript.append(Turn{
			Speaker:   speaker.Owner(),
			Raw:       raw,
			Sanitized: sanitized,
			Decision:  decision,
		})
		if n > 0 {
			t.Annotations = append(t.Annotations, fmt.Sprintf("redacted:%d", n))
			slog.Warn("Outbound message redacted", "attempt", ex.ID, "owner", speaker.Owner(), "count", n)
		}
		speaker.Decision = decision
		speaker.history = append(speaker.history, fmt.Sprintf("[%s] %s %s", speaker.Owner(), decision, sanitized))

		if decision == Reject || ex.bothAccepted() {
			ex.ended = endDecided
			return
		}

		if types := middleware.MatchTypes(ex.detector.ScanInjection(sanitized)); len(types) > 0 {
			t.Annotations = append(t.Annotations, "injection:"+strings.Join(types, ","))
			slog.Warn("Injection phrasing in counterpart message", "attempt", ex.ID, "from", speaker.Owner(), "types", types)
		}
		pr, err := present(ctx, ex, listener, sanitized)
		if err != nil {
			ex.stop(listener, err, true)
			return
		}
		t.Annotations = append(t.Annotations, pr.Annotations...)
		ex.observe(pr)
		listener.history = append(listener.history, fmt.Sprintf("[%s] %s %s", speaker.Owner(), decision, pr.Text))
	}
	ex.ended = endTurnBound
	slog.Info("Negotiation reached turn bound", "attempt", ex.ID, "turns", ex.maxTurns)
}

func (ex *Exchange) observe(pr Presented) {
	if pr.Flagged {
		ex.flagged++
	}
}

func (ex *Exchange) bothAccepted() bool {
	return ex.Parties[0].Decision == Accept && ex.Parties[1].Decision == Accept
}

// stop ends the dialogue because of err on p's side. Malformed output derived
// from counterpart content is an implicit REJECT turn; anything else is a
// failure.
func (ex *Exchange) stop(p *Party, err error, counterpartDerived bool) {
	p.Decision = Reject
	if counterpartDerived && errors.Is(err, ErrMalformedOutput) {
		ex.flagged++
		ex.Transcript.append(Turn{
			Speaker:     p.Owner(),
			Decision:    Reject,
			Annotations: []string{"flagged:malformed_counterpart_output"},
		})
		ex.ended = endDecided
		slog.Warn("Malformed counterpart-derived output, rejecting", "attempt", ex.ID, "owner", p.Owner())
		return
	}
	ex.ended = endFailed
	slog.Warn("Negotiation failed closed", "attempt", ex.ID, "owner", p.Owner(), "error", err)
}

// Settle fixes the final decisions and returns the outcome. Every decision
// that is not ACCEPT becomes REJECT unless both agents accepted.
func (ex *Exchange) Settle() Outcome {
	if ex.bothAccepted() && ex.ended != endFailed {
		ex.transition(StateAgreed)
	} else {
		for _, p := range ex.Parties {
			if p.Decision != Accept {
				p.Decision = Reject
			}
		}
		ex.transition(StateDisagreed)
	}
	out := Outcome{
		AttemptID: ex.ID,
		State:     ex.state,
		Strategy:  ex.variant,
		Decisions: make(map[string]Decision, 2),
		Disclosed: make(map[string]string, 2),
		Turns:     len(ex.Transcript.Turns),
		Flagged:   ex.flagged,
		Duration:  time.Since(ex.started),
	}
	for _, p := range ex.Parties {
		out.Decisions[p.Owner()] = p.Decision
		out.Disclosed[p.Owner()] = ex.other(p).Summary
	}
	if ex.ended == endFailed {
		out.Diagnostic = DiagnosticIncomplete
	}
	return out
}
