package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/KafClaw/PairClaw/internal/identity"
)

var watchDir string

var matchCmd = &cobra.Command{
	Use:   "match <owner>",
	Short: "Run one matching pass for an owner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			results, err := a.svc.MatchingPass(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "No candidates.")
				return nil
			}
			for _, res := range results {
				if res.Err != nil {
					warn(out, "%s: %v", res.Counterpart, res.Err)
					continue
				}
				ok(out, "%s: %s (%s)", res.Counterpart, statusColor(res.Relation.Status), res.Relation.ID)
			}
			return nil
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the matching loop, deliver notifications and watch profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return withApp(ctx, func(a *app) error {
			go func() {
				if err := a.bus.Dispatch(ctx); err != nil && ctx.Err() == nil {
					slog.Warn("Notification dispatch stopped", "error", err)
				}
			}()

			if watchDir != "" {
				w, err := startWatcher(ctx, a, watchDir)
				if err != nil {
					return err
				}
				defer w.Stop()
			}

			printHeader(cmd.OutOrStdout(), "🤝 PairClaw serving")
			if !a.cfg.Matching.Enabled {
				slog.Info("Matching loop disabled, serving notifications and profile edits only")
				if _, err := a.svc.Recover(ctx); err != nil {
					return err
				}
				<-ctx.Done()
				return nil
			}
			return a.svc.Serve(ctx)
		})
	},
}

// startWatcher imports every profile in dir, then applies edits as they are
// saved.
func startWatcher(ctx context.Context, a *app, dir string) (*identity.Watcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	res, err := identity.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, p := range res.Loaded {
		if _, err := a.svc.ApplyProfile(ctx, p); err != nil {
			slog.Warn("Profile import failed", "owner", p.Owner, "error", err)
		}
	}
	for _, e := range res.Errors {
		slog.Warn("Profile skipped", "error", e)
	}

	w, err := identity.NewWatcher(dir, func(p *identity.Profile) {
		if _, err := a.svc.ApplyProfile(ctx, p); err != nil {
			slog.Warn("Profile edit rejected", "owner", p.Owner, "error", err)
		}
	})
	if err != nil {
		return nil, err
	}
	w.Start()
	slog.Info("Watching profiles", "dir", dir, "loaded", len(res.Loaded))
	return w, nil
}

func init() {
	serveCmd.Flags().StringVar(&watchDir, "watch", "", "Profile directory to import and watch")
}
