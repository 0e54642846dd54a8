package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/KafClaw/PairClaw/internal/config"
	"github.com/KafClaw/PairClaw/internal/identity"
	"github.com/KafClaw/PairClaw/internal/negotiation"
)

var (
	defenseVariant string
	defenseModels  []string
	initDir        string
	initForce      bool
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage the agents owners delegate",
}

var agentInitCmd = &cobra.Command{
	Use:   "init <owner>",
	Short: "Write a starter profile to fill in and import",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := initDir
		if dir == "" {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			dir = cfg.Paths.Profiles
		}
		res, err := identity.ScaffoldProfile(dir, args[0], initForce)
		if err != nil {
			return err
		}
		if !res.Created {
			warn(cmd.OutOrStdout(), "%s exists, use --force to overwrite", res.Path)
			return nil
		}
		ok(cmd.OutOrStdout(), "Created %s", res.Path)
		return nil
	},
}

var agentImportCmd = &cobra.Command{
	Use:   "import <profile.yaml|dir>",
	Short: "Register or update agents from YAML profiles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profiles, skipped, err := readProfiles(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		return withApp(cmd.Context(), func(a *app) error {
			failed := 0
			for _, p := range profiles {
				id, err := a.svc.ApplyProfile(cmd.Context(), p)
				if err != nil {
					warn(out, "%s: %v", p.Owner, err)
					failed++
					continue
				}
				ok(out, "%s imported (%s)", id.OwnerID, id.Lifecycle)
			}
			for _, s := range skipped {
				warn(out, "skipped %s", s)
			}
			if failed > 0 {
				return fmt.Errorf("%d profile(s) failed", failed)
			}
			return nil
		})
	},
}

var agentSetupCmd = &cobra.Command{
	Use:   "setup <owner> <message...>",
	Short: "Register or update an agent from a free-text description",
	Long: `Sends the message to the agent's model, which sorts it into public
information, private information and policies. The result replaces the
agent's profile; an unknown owner is registered.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args[1:], " ")
		return withApp(cmd.Context(), func(a *app) error {
			id, err := a.svc.SetupFromText(cmd.Context(), args[0], text)
			if err != nil {
				return err
			}
			ok(cmd.OutOrStdout(), "%s set up (%s): %d public, %d private, %d policies",
				id.OwnerID, id.Lifecycle, len(id.Public), len(id.Private), len(id.Policies))
			return nil
		})
	},
}

var agentShowCmd = &cobra.Command{
	Use:   "show <owner>",
	Short: "Print an agent's profile and lifecycle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			id, err := a.svc.GetAgent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(identity.ProfileFrom(id))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# lifecycle: %s\n", id.Lifecycle)
			fmt.Fprint(out, string(data))
			return nil
		})
	},
}

var agentPauseCmd = &cobra.Command{
	Use:   "pause <owner>",
	Short: "Stop an agent from negotiating; in-flight attempts are aborted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.svc.PauseAgent(cmd.Context(), args[0]); err != nil {
				return err
			}
			ok(cmd.OutOrStdout(), "%s paused", args[0])
			return nil
		})
	},
}

var agentResumeCmd = &cobra.Command{
	Use:   "resume <owner>",
	Short: "Resume a paused agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.svc.ResumeAgent(cmd.Context(), args[0]); err != nil {
				return err
			}
			ok(cmd.OutOrStdout(), "%s resumed", args[0])
			return nil
		})
	},
}

var agentDeleteCmd = &cobra.Command{
	Use:   "delete <owner>",
	Short: "Delete an agent, wiping its information and resetting its relations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.svc.DeleteAgent(cmd.Context(), args[0]); err != nil {
				return err
			}
			ok(cmd.OutOrStdout(), "%s deleted", args[0])
			return nil
		})
	},
}

var agentDefenseCmd = &cobra.Command{
	Use:   "defense <owner>",
	Short: "Select the defense strategy and models of an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			id, err := a.svc.SelectDefenseStrategy(cmd.Context(), args[0], defenseVariant, defenseModels)
			if err != nil {
				return err
			}
			variant := id.Defense.Variant
			if variant == "" {
				variant = a.cfg.Negotiation.DefaultStrategy + " (default)"
			}
			ok(cmd.OutOrStdout(), "%s uses %s with %s", id.OwnerID, variant, strings.Join(id.Defense.Models, ", "))
			return nil
		})
	},
}

var agentDiscloseCmd = &cobra.Command{
	Use:   "disclose <owner> <itemID>",
	Short: "Check whether an agent may disclose one information item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			d, err := a.svc.EvaluateInformationDisclosure(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", d.ItemID, d.Verdict, d.Reason)
			return nil
		})
	},
}

var agentModelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List selectable models and defense strategies",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			out := cmd.OutOrStdout()
			models := a.svc.AvailableModels()
			if len(models) == 0 {
				fmt.Fprintln(out, "Models:     any resolvable provider/model")
			} else {
				fmt.Fprintf(out, "Models:     %s\n", strings.Join(models, ", "))
			}
			fmt.Fprintf(out, "Strategies: %s\n", strings.Join(negotiation.Variants(), ", "))
			return nil
		})
	},
}

// readProfiles loads one profile file or every profile in a directory.
func readProfiles(path string) ([]*identity.Profile, []string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}
	if !info.IsDir() {
		p, err := identity.LoadProfile(path)
		if err != nil {
			return nil, nil, err
		}
		return []*identity.Profile{p}, nil, nil
	}
	res, err := identity.LoadDir(path)
	if err != nil {
		return nil, nil, err
	}
	return res.Loaded, append(res.Skipped, res.Errors...), nil
}

func init() {
	agentDefenseCmd.Flags().StringVar(&defenseVariant, "variant", "", "Defense strategy ("+strings.Join(negotiation.Variants(), ", ")+")")
	agentDefenseCmd.Flags().StringSliceVar(&defenseModels, "model", nil, "Model identifiers; the second one is quarantined under dual_llm")

	agentInitCmd.Flags().StringVar(&initDir, "dir", "", "Profile directory (defaults to paths.profiles)")
	agentInitCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing profile")

	agentCmd.AddCommand(agentInitCmd)
	agentCmd.AddCommand(agentImportCmd)
	agentCmd.AddCommand(agentSetupCmd)
	agentCmd.AddCommand(agentShowCmd)
	agentCmd.AddCommand(agentPauseCmd)
	agentCmd.AddCommand(agentResumeCmd)
	agentCmd.AddCommand(agentDeleteCmd)
	agentCmd.AddCommand(agentDefenseCmd)
	agentCmd.AddCommand(agentDiscloseCmd)
	agentCmd.AddCommand(agentModelsCmd)
}
