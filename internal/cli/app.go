package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/KafClaw/PairClaw/internal/bus"
	"github.com/KafClaw/PairClaw/internal/channels"
	"github.com/KafClaw/PairClaw/internal/config"
	"github.com/KafClaw/PairClaw/internal/events"
	"github.com/KafClaw/PairClaw/internal/negotiation"
	"github.com/KafClaw/PairClaw/internal/orchestrator"
	"github.com/KafClaw/PairClaw/internal/policy"
	"github.com/KafClaw/PairClaw/internal/provider"
	"github.com/KafClaw/PairClaw/internal/provider/middleware"
	"github.com/KafClaw/PairClaw/internal/store"
)

// app is the wired runtime behind every command that touches state.
type app struct {
	cfg       *config.Config
	store     *store.Store
	bus       *bus.MessageBus
	publisher events.Publisher
	router    *provider.Router
	svc       *orchestrator.Service
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.Paths.Database)
	if err != nil {
		return nil, err
	}

	router := provider.NewRouter(cfg, middleware.Wrapper(middleware.NewPromptGuard(cfg.PromptGuard)))
	pol := policy.NewDefaultEngine()
	engine := negotiation.NewEngine(router, pol, negotiation.OptionsFrom(cfg))

	var pub events.Publisher = events.Nop{}
	if cfg.Events.Enabled {
		kp, err := events.NewKafkaPublisher(cfg.Events)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("events: %w", err)
		}
		pub = kp
	}

	msgBus := bus.NewMessageBus()
	if err := channels.NewSlackChannel(cfg.Notify, msgBus).Start(ctx); err != nil {
		slog.Warn("Slack notifications unavailable", "error", err)
	}

	svc := orchestrator.New(orchestrator.Deps{
		Store:    st,
		Engine:   engine,
		Policy:   pol,
		Bus:      msgBus,
		Events:   pub,
		Models:   router,
		Matching: cfg.Matching,
	})
	return &app{cfg: cfg, store: st, bus: msgBus, publisher: pub, router: router, svc: svc}, nil
}

// Close delivers queued notifications and releases the store and publisher.
func (a *app) Close() {
	if n := a.bus.Drain(); n > 0 {
		slog.Debug("Delivered notifications", "count", n)
	}
	if err := a.publisher.Close(); err != nil {
		slog.Warn("Event publisher close failed", "error", err)
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("Store close failed", "error", err)
	}
}

// withApp opens the runtime, runs fn and closes it.
func withApp(ctx context.Context, fn func(*app) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
