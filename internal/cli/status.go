package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KafClaw/PairClaw/internal/config"
	"github.com/KafClaw/PairClaw/internal/identity"
	"github.com/KafClaw/PairClaw/internal/relation"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		printHeader(out, "📊 PairClaw Status")
		fmt.Fprintf(out, "Version:  %s\n", version)

		if path, err := config.ConfigPath(); err == nil {
			if _, err := os.Stat(path); err == nil {
				fmt.Fprintln(out, "Config:   ✓ Found ("+path+")")
			} else {
				fmt.Fprintln(out, "Config:   ✗ Not found, using defaults")
			}
		}

		return withApp(cmd.Context(), func(a *app) error {
			fmt.Fprintf(out, "Database: %s\n", a.cfg.Paths.Database)
			fmt.Fprintf(out, "Model:    %s\n", a.cfg.Model.Name)
			fmt.Fprintf(out, "Strategy: %s (%s)\n", a.cfg.Negotiation.DefaultStrategy, a.cfg.Negotiation.SpotlightMode)
			if a.cfg.Events.Enabled {
				fmt.Fprintf(out, "Events:   ✓ Kafka %s → %s\n", a.cfg.Events.KafkaBrokers, a.cfg.Events.Topic)
			} else {
				fmt.Fprintln(out, "Events:   ✗ Disabled")
			}
			if a.cfg.Notify.Enabled && a.cfg.Notify.SlackWebhookURL != "" {
				fmt.Fprintln(out, "Slack:    ✓ Enabled")
			} else {
				fmt.Fprintln(out, "Slack:    ✗ Disabled")
			}

			agents, err := a.store.ListAgents(cmd.Context(), "")
			if err != nil {
				return err
			}
			byLifecycle := map[identity.Lifecycle]int{}
			for _, id := range agents {
				byLifecycle[id.Lifecycle]++
			}
			fmt.Fprintf(out, "Agents:   %d active, %d unset, %d paused, %d deleted\n",
				byLifecycle[identity.LifecycleActive], byLifecycle[identity.LifecycleUnset],
				byLifecycle[identity.LifecyclePaused], byLifecycle[identity.LifecycleDeleted])

			for _, s := range []relation.Status{relation.StatusAwaitingHuman, relation.StatusEstablished, relation.StatusRejected} {
				rels, err := a.store.ListRelationsByStatus(cmd.Context(), s)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-17s %d\n", string(s)+":", len(rels))
			}
			return nil
		})
	},
}
