package negotiation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KafClaw/PairClaw/internal/config"
	"github.com/KafClaw/PairClaw/internal/identity"
	"github.com/KafClaw/PairClaw/internal/provider/middleware"
)

// Disclosures is the part of the policy model the engine needs.
type Disclosures interface {
	Disclosable(id *identity.Identity) []identity.Item
	Redactions(id *identity.Identity) []string
}

// Options bound every attempt.
type Options struct {
	MaxTurns        int
	MaxRetries      int
	TurnTimeout     time.Duration
	DefaultStrategy string
	SpotlightMode   string
	// DefaultModel serves agents without a configured model.
	DefaultModel string
	// JudgeModel runs the central judge and the public-info verifier.
	JudgeModel string
}

// OptionsFrom reads engine options from configuration.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		MaxTurns:        cfg.Negotiation.MaxTurns,
		MaxRetries:      cfg.Negotiation.MaxRetries,
		TurnTimeout:     cfg.Negotiation.TurnTimeout,
		DefaultStrategy: cfg.Negotiation.DefaultStrategy,
		SpotlightMode:   cfg.Negotiation.SpotlightMode,
		DefaultModel:    cfg.Model.Name,
		JudgeModel:      cfg.Model.Orchestrator,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxTurns <= 0 {
		o.MaxTurns = 6
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.TurnTimeout <= 0 {
		o.TurnTimeout = 60 * time.Second
	}
	if o.DefaultStrategy == "" {
		o.DefaultStrategy = VariantSpotlight
	}
	if o.SpotlightMode == "" {
		o.SpotlightMode = SpotlightDatamark
	}
	return o
}

// Engine runs negotiation attempts. It allows one attempt per unordered pair.
type Engine struct {
	backend  Backend
	policy   Disclosures
	opts     Options
	detector *middleware.Detector

	mu     sync.Mutex
	active map[string]*attempt
}

type attempt struct {
	id      string
	parties [2]string
	cancel  context.CancelFunc
}

// NewEngine creates an engine.
func NewEngine(backend Backend, policy Disclosures, opts Options) *Engine {
	return &Engine{
		backend:  backend,
		policy:   policy,
		opts:     opts.withDefaults(),
		detector: middleware.NewDetector(nil, nil),
		active:   make(map[string]*attempt),
	}
}

// DefaultStrategy is the variant agents without a selection use.
func (e *Engine) DefaultStrategy() string { return e.opts.DefaultStrategy }

// PairKey identifies an unordered pair.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// StrategyFor picks the variant for a pair: the more hardened of the two
// configured variants, with unset variants taking the default.
func (e *Engine) StrategyFor(a, b *identity.Identity) (Strategy, error) {
	va, err := NormalizeVariant(a.Defense.Variant)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.OwnerID, err)
	}
	vb, err := NormalizeVariant(b.Defense.Variant)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.OwnerID, err)
	}
	if va == "" {
		va = e.opts.DefaultStrategy
	}
	if vb == "" {
		vb = e.opts.DefaultStrategy
	}
	return Lookup(Harder(va, vb))
}

// Run executes one attempt. Both identities are snapshotted on entry; later
// edits do not affect the attempt. Backend failures are recovered into a
// REJECT outcome; only invalid requests and ErrConcurrentAttempt are errors.
func (e *Engine) Run(ctx context.Context, req Request) (Outcome, error) {
	a, b := req.A.Clone(), req.B.Clone()
	if a == nil || b == nil || a.OwnerID == "" || b.OwnerID == "" || a.OwnerID == b.OwnerID {
		return Outcome{}, fmt.Errorf("%w: two distinct identities required", ErrInvalidRequest)
	}
	if !a.IsActive() || !b.IsActive() {
		return Outcome{}, fmt.Errorf("%w: both agents must be active", ErrInvalidRequest)
	}
	if req.Initiator == b.OwnerID {
		a, b = b, a
	} else if req.Initiator != "" && req.Initiator != a.OwnerID {
		return Outcome{}, fmt.Errorf("%w: initiator %q is not a party", ErrInvalidRequest, req.Initiator)
	}
	strategy, err := e.StrategyFor(a, b)
	if err != nil {
		return Outcome{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	key := PairKey(a.OwnerID, b.OwnerID)
	id, err := e.acquire(key, a.OwnerID, b.OwnerID, cancel)
	if err != nil {
		return Outcome{}, err
	}
	defer e.release(key, id)

	ex := e.newExchange(id, strategy.Variant(), a, b)
	slog.Info("Negotiation started", "attempt", id, "initiator", a.OwnerID, "responder", b.OwnerID, "strategy", strategy.Variant())
	out, err := strategy.Negotiate(ctx, ex)
	if err != nil {
		return Outcome{}, err
	}
	if !out.State.Terminal() {
		slog.Error("Strategy left the attempt unfinished", "attempt", id, "strategy", strategy.Variant(), "state", out.State)
		ex.ended = endFailed
		out = ex.Settle()
	}
	slog.Info("Negotiation finished",
		"attempt", id,
		"state", out.State,
		"turns", out.Turns,
		"flagged", out.Flagged,
		"duration", out.Duration.Round(time.Millisecond))
	return out, nil
}

func (e *Engine) newExchange(id, variant string, a, b *identity.Identity) *Exchange {
	ex := &Exchange{
		ID:            id,
		state:         StateInitiated,
		maxTurns:      e.opts.MaxTurns,
		maxRetries:    e.opts.MaxRetries,
		turnTimeout:   e.opts.TurnTimeout,
		judgeModel:    e.opts.JudgeModel,
		spotlightMode: e.opts.SpotlightMode,
		backend:       e.backend,
		detector:      e.detector,
		variant:       variant,
		started:       time.Now(),
	}
	for i, idn := range []*identity.Identity{a, b} {
		model := idn.Defense.PrimaryModel()
		if model == "" {
			model = e.opts.DefaultModel
		}
		quarantined := idn.Defense.QuarantinedModel()
		if quarantined == "" {
			quarantined = model
		}
		ex.Parties[i] = &Party{
			Identity:    idn,
			Model:       model,
			quarantined: quarantined,
			Summary:     identity.Render(e.policy.Disclosable(idn)),
			Decision:    Pending,
			redactor:    middleware.NewRedactor(e.policy.Redactions(idn)),
		}
	}
	return ex
}

func (e *Engine) acquire(key, a, b string, cancel context.CancelFunc) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.active[key]; busy {
		return "", ErrConcurrentAttempt
	}
	id := uuid.NewString()
	e.active[key] = &attempt{id: id, parties: [2]string{a, b}, cancel: cancel}
	return id, nil
}

func (e *Engine) release(key, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if at, ok := e.active[key]; ok && at.id == id {
		delete(e.active, key)
	}
}

// Active reports whether the pair has an attempt in flight.
func (e *Engine) Active(a, b string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.active[PairKey(a, b)]
	return ok
}

// CancelPair aborts the in-flight attempt of one pair, if any.
func (e *Engine) CancelPair(a, b string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	at, ok := e.active[PairKey(strings.TrimSpace(a), strings.TrimSpace(b))]
	if ok {
		at.cancel()
	}
	return ok
}

// Cancel aborts every in-flight attempt owner is party to. Aborted attempts
// settle as AGENTS_DISAGREED. It returns the number of attempts cancelled.
func (e *Engine) Cancel(owner string) int {
	owner = strings.TrimSpace(owner)
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, at := range e.active {
		if at.parties[0] == owner || at.parties[1] == owner {
			at.cancel()
			n++
		}
	}
	if n > 0 {
		slog.Info("Cancelled in-flight negotiations", "owner", owner, "count", n)
	}
	return n
}
