package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/KafClaw/PairClaw/internal/orchestrator"
	"github.com/KafClaw/PairClaw/internal/relation"
)

var relationCmd = &cobra.Command{
	Use:   "relation",
	Short: "Propose, negotiate and review relations between agents",
}

// pairCommand builds a "<a> <b>" command around one service call.
func pairCommand(use, short string, call func(*orchestrator.Service, context.Context, string, string) (*relation.Relation, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <a> <b>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				r, err := call(a.svc, cmd.Context(), args[0], args[1])
				if r != nil {
					printRelation(cmd.OutOrStdout(), r)
				}
				return err
			})
		},
	}
}

var (
	relationProposeCmd   = pairCommand("propose", "Propose a relation, a initiating", (*orchestrator.Service).ProposeRelation)
	relationConnectCmd   = pairCommand("connect", "Propose a relation and negotiate it", (*orchestrator.Service).Connect)
	relationNegotiateCmd = pairCommand("negotiate", "Negotiate the proposed relation between a and b",
		func(s *orchestrator.Service, ctx context.Context, a, b string) (*relation.Relation, error) {
			r, err := s.ProposeRelation(ctx, a, b)
			if err != nil {
				return nil, err
			}
			return s.RunNegotiation(ctx, r.ID)
		})
)

var relationFeedbackCmd = &cobra.Command{
	Use:   "feedback <relationID> <owner> accept|reject",
	Short: "Record an owner's decision on a relation awaiting review",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, valid := relation.ParseDecision(args[2])
		if !valid {
			return fmt.Errorf("decision must be accept or reject, got %q", args[2])
		}
		return withApp(cmd.Context(), func(a *app) error {
			r, err := a.svc.SubmitHumanFeedback(cmd.Context(), args[0], args[1], d)
			if err != nil {
				return err
			}
			printRelation(cmd.OutOrStdout(), r)
			return nil
		})
	},
}

var relationResetCmd = &cobra.Command{
	Use:   "reset <relationID> <owner>",
	Short: "Reset a relation back to NONE on behalf of one party",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			r, err := a.svc.ResetRelation(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			printRelation(cmd.OutOrStdout(), r)
			return nil
		})
	},
}

var relationShowCmd = &cobra.Command{
	Use:   "show <relationID>",
	Short: "Print a relation and its event log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			r, err := a.svc.GetRelation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printRelation(out, r)
			evs, err := a.svc.Events(cmd.Context(), r.ID)
			if err != nil {
				return err
			}
			for _, e := range evs {
				fmt.Fprintf(out, "  %s  %-22s %-8s %s %s\n", e.CreatedAt.Format(time.RFC3339), e.Type, e.OwnerID, e.Status, e.Detail)
			}
			return nil
		})
	},
}

var relationViewsCmd = &cobra.Command{
	Use:   "views <owner>",
	Short: "List an owner's pending, sent, established and rejected relations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			v, err := a.svc.Views(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printBucket(out, "Pending", args[0], v.Pending)
			printBucket(out, "Sent", args[0], v.Sent)
			printBucket(out, "Established", args[0], v.Established)
			printBucket(out, "Rejected", args[0], v.Rejected)
			return nil
		})
	},
}

func init() {
	relationCmd.AddCommand(relationProposeCmd)
	relationCmd.AddCommand(relationNegotiateCmd)
	relationCmd.AddCommand(relationConnectCmd)
	relationCmd.AddCommand(relationFeedbackCmd)
	relationCmd.AddCommand(relationResetCmd)
	relationCmd.AddCommand(relationShowCmd)
	relationCmd.AddCommand(relationViewsCmd)
}
