package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/KafClaw/PairClaw/internal/relation"
)

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w, color.CyanString(logo))
	if title != "" {
		fmt.Fprintln(w, title)
		fmt.Fprintln(w, "─────────────────────")
	}
}

func ok(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, color.GreenString("✓ ")+fmt.Sprintf(format, args...))
}

func warn(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, color.YellowString("! ")+fmt.Sprintf(format, args...))
}

func statusColor(s relation.Status) string {
	switch s {
	case relation.StatusEstablished:
		return color.GreenString(string(s))
	case relation.StatusRejected:
		return color.RedString(string(s))
	case relation.StatusAwaitingHuman:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

func printRelation(w io.Writer, r *relation.Relation) {
	fmt.Fprintf(w, "Relation:  %s\n", r.ID)
	fmt.Fprintf(w, "Parties:   %s <-> %s (initiator %s)\n", r.PartyA, r.PartyB, r.Initiator)
	fmt.Fprintf(w, "Status:    %s\n", statusColor(r.Status))
	if r.Strategy != "" {
		fmt.Fprintf(w, "Strategy:  %s\n", r.Strategy)
	}
	fmt.Fprintf(w, "Agents:    %s=%s %s=%s\n", r.PartyA, r.AgentDecisionA, r.PartyB, r.AgentDecisionB)
	fmt.Fprintf(w, "Humans:    %s=%s %s=%s\n", r.PartyA, r.HumanDecisionA, r.PartyB, r.HumanDecisionB)
	if r.Diagnostic != "" {
		fmt.Fprintf(w, "Diagnostic: %s\n", color.RedString(r.Diagnostic))
	}
}

func printBucket(w io.Writer, title, owner string, rels []*relation.Relation) {
	fmt.Fprintf(w, "%s (%d)\n", title, len(rels))
	for _, r := range rels {
		disclosed := r.DisclosedToA
		if owner == r.PartyB {
			disclosed = r.DisclosedToB
		}
		fmt.Fprintf(w, "  %s  %s  %s\n", r.ID, r.Counterpart(owner), strings.ReplaceAll(disclosed, "\n", "; "))
	}
}
