package negotiation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/KafClaw/PairClaw/internal/identity"
)

const (
	maxSetupItems   = 32
	maxSetupContent = 500
)

// ErrNoModel is returned when neither the owner nor the configuration names
// a model.
var ErrNoModel = errors.New("no model configured")

var itemIDRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_]{0,47}$`)

// Setup is an owner's free-text self description sorted into information
// tiers and policies.
type Setup struct {
	Public    []identity.Item `json:"public"`
	Private   []identity.Item `json:"private"`
	Policies  []identity.Item `json:"policies"`
	Questions []string        `json:"-"`
}

// ExtractSetup asks model to sort an owner's free-text message into public
// information, private information and policies. Answers that do not match
// the schema are retried like malformed turns. With questions set it also
// derives the dual LLM screening questions from the extracted policies.
func (e *Engine) ExtractSetup(ctx context.Context, owner, model, text string, questions bool) (Setup, error) {
	if strings.TrimSpace(text) == "" {
		return Setup{}, fmt.Errorf("setup %s: empty message", owner)
	}
	if model == "" {
		model = e.opts.DefaultModel
	}
	if model == "" {
		return Setup{}, fmt.Errorf("setup %s: %w", owner, ErrNoModel)
	}
	ex := &Exchange{
		ID:          "setup-" + owner,
		maxRetries:  e.opts.MaxRetries,
		turnTimeout: e.opts.TurnTimeout,
		backend:     e.backend,
	}

	var out Setup
	_, err := ex.Ask(ctx, model, setupPrompt(owner, text), func(raw string) error {
		out = Setup{}
		if err := decodeJSON(raw, &out); err != nil {
			return err
		}
		return validateSetup(&out)
	})
	if err != nil {
		return Setup{}, fmt.Errorf("setup %s: %w", owner, err)
	}

	if questions && len(out.Policies) > 0 {
		id := &identity.Identity{OwnerID: owner, Policies: out.Policies}
		raw, err := ex.Ask(ctx, model, questionsPrompt(id), func(s string) error {
			if len(parseLines(s, maxQuestions)) == 0 {
				return fmt.Errorf("%w: no questions", ErrMalformedOutput)
			}
			return nil
		})
		if err != nil {
			return Setup{}, fmt.Errorf("setup %s: screening questions: %w", owner, err)
		}
		out.Questions = parseLines(raw, maxQuestions)
	}
	slog.Info("Setup extracted", "owner", owner, "public", len(out.Public), "private", len(out.Private),
		"policies", len(out.Policies), "questions", len(out.Questions))
	return out, nil
}

// validateSetup normalizes IDs and rejects answers that would not load as a
// profile. An ID may appear in only one information tier.
func validateSetup(s *Setup) error {
	if len(s.Public)+len(s.Private)+len(s.Policies) == 0 {
		return fmt.Errorf("%w: nothing extracted", ErrMalformedOutput)
	}
	info := map[string]bool{}
	for _, group := range []struct {
		name  string
		items []identity.Item
		info  bool
	}{
		{"public", s.Public, true},
		{"private", s.Private, true},
		{"policies", s.Policies, false},
	} {
		if len(group.items) > maxSetupItems {
			return fmt.Errorf("%w: too many %s items", ErrMalformedOutput, group.name)
		}
		seen := map[string]bool{}
		for i := range group.items {
			it := &group.items[i]
			it.ID = strings.ToLower(strings.TrimSpace(it.ID))
			it.Content = strings.TrimSpace(it.Content)
			switch {
			case !itemIDRe.MatchString(it.ID):
				return fmt.Errorf("%w: bad %s id %q", ErrMalformedOutput, group.name, it.ID)
			case it.Content == "":
				return fmt.Errorf("%w: %s item %s is empty", ErrMalformedOutput, group.name, it.ID)
			case len(it.Content) > maxSetupContent:
				return fmt.Errorf("%w: %s item %s too long", ErrMalformedOutput, group.name, it.ID)
			case seen[it.ID] || (group.info && info[it.ID]):
				return fmt.Errorf("%w: duplicate id %s", ErrMalformedOutput, it.ID)
			}
			seen[it.ID] = true
			if group.info {
				info[it.ID] = true
			}
		}
	}
	return nil
}
