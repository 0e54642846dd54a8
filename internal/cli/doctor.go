package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KafClaw/PairClaw/internal/config"
	"github.com/KafClaw/PairClaw/internal/events"
	"github.com/KafClaw/PairClaw/internal/provider"
	"github.com/KafClaw/PairClaw/internal/store"
)

type checkStatus string

const (
	checkPass checkStatus = "PASS"
	checkWarn checkStatus = "WARN"
	checkFail checkStatus = "FAIL"
)

type doctorCheck struct {
	Name    string
	Status  checkStatus
	Message string
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run config, database, model and Kafka diagnostics",
	RunE: func(cmd *cobra.Command, args []string) error {
		checks := runDoctor(cmd.Context())
		failures := 0
		for _, c := range checks {
			if c.Status == checkFail {
				failures++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", c.Status, c.Name, c.Message)
		}
		if failures > 0 {
			return fmt.Errorf("doctor found %d failing check(s)", failures)
		}
		return nil
	},
}

func runDoctor(ctx context.Context) []doctorCheck {
	cfg, err := config.Load()
	if err != nil {
		return []doctorCheck{{"config", checkFail, err.Error()}}
	}
	checks := []doctorCheck{{"config", checkPass, "loaded"}}

	if st, err := store.Open(cfg.Paths.Database); err != nil {
		checks = append(checks, doctorCheck{"database", checkFail, err.Error()})
	} else {
		if err := st.Ping(ctx); err != nil {
			checks = append(checks, doctorCheck{"database", checkFail, err.Error()})
		} else {
			checks = append(checks, doctorCheck{"database", checkPass, cfg.Paths.Database})
		}
		_ = st.Close()
	}

	for _, m := range uniqueModels(cfg.Model.Name, cfg.Model.Orchestrator) {
		if _, err := provider.Build(cfg, m); err != nil {
			checks = append(checks, doctorCheck{"model " + m, checkFail, err.Error()})
		} else {
			checks = append(checks, doctorCheck{"model " + m, checkPass, "provider resolved"})
		}
	}

	switch {
	case !cfg.Notify.Enabled:
		checks = append(checks, doctorCheck{"slack", checkWarn, "notifications disabled"})
	case cfg.Notify.SlackWebhookURL == "":
		checks = append(checks, doctorCheck{"slack", checkFail, "enabled without a webhook URL"})
	default:
		checks = append(checks, doctorCheck{"slack", checkPass, "webhook configured"})
	}

	if !cfg.Events.Enabled {
		return append(checks, doctorCheck{"kafka", checkWarn, "event stream disabled"})
	}
	results, err := events.CheckBrokers(ctx, cfg.Events)
	if err != nil {
		return append(checks, doctorCheck{"kafka", checkFail, err.Error()})
	}
	for _, r := range results {
		status := checkPass
		if !r.OK {
			status = checkFail
		}
		checks = append(checks, doctorCheck{"kafka " + r.Broker, status, r.Detail})
	}
	return checks
}

func uniqueModels(models ...string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range models {
		if m != "" && !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
