// Package negotiation runs bounded two-agent dialogues. One Engine drives
// every attempt; a Strategy decides how counterpart-originated content is
// mediated before a reasoning model reads it.
package negotiation

import (
	"context"
	"time"

	"github.com/KafClaw/PairClaw/internal/identity"
)

// Decision is an agent's signal at the end of a turn.
type Decision string

const (
	Pending  Decision = "PENDING"
	Accept   Decision = "ACCEPT"
	Reject   Decision = "REJECT"
	Continue Decision = "CONTINUE"
)

// Final reports whether d ends the agent's participation (ACCEPT or REJECT).
func (d Decision) Final() bool {
	return d == Accept || d == Reject
}

// Backend is the reasoning primitive: ask model a question, get text back.
// Its output is untrusted.
type Backend interface {
	Invoke(ctx context.Context, model, prompt string) (string, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, model, prompt string) (string, error)

func (f BackendFunc) Invoke(ctx context.Context, model, prompt string) (string, error) {
	return f(ctx, model, prompt)
}

// Request starts one attempt. Initiator must be the OwnerID of A or B and
// speaks first; an empty Initiator means A.
type Request struct {
	A, B      *identity.Identity
	Initiator string
}

// Turn is one entry in an attempt's transcript.
type Turn struct {
	Speaker     string
	Raw         string
	Sanitized   string
	Decision    Decision
	Annotations []string
}

// Transcript is the ordered record of one attempt. It is never persisted.
type Transcript struct {
	Turns []Turn
}

func (t *Transcript) append(turn Turn) *Turn {
	t.Turns = append(t.Turns, turn)
	return &t.Turns[len(t.Turns)-1]
}

// Outcome is what survives an attempt.
type Outcome struct {
	AttemptID string
	State     State
	Strategy  string
	// Decisions and Disclosed are keyed by OwnerID. Disclosed holds the
	// sanitized public summary that owner's agent received.
	Decisions map[string]Decision
	Disclosed map[string]string
	// Diagnostic is human-safe text set when the attempt could not complete.
	Diagnostic string
	Turns      int
	Flagged    int
	Duration   time.Duration
}

// Agreed reports whether both agents accepted.
func (o Outcome) Agreed() bool {
	return o.State == StateAgreed
}
