package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/KafClaw/PairClaw/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		"  ____       _       ____ _\n" +
		" |  _ \\ __ _(_)_ __ / ___| | __ ___      __\n" +
		" | |_) / _` | | '__| |   | |/ _` \\ \\ /\\ / /\n" +
		" |  __/ (_| | | |  | |___| | (_| |\\ V  V /\n" +
		" |_|   \\__,_|_|_|   \\____|_|\\__,_| \\_/\\_/\n"

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "pairclaw",
	Short:         "PairClaw - agents that negotiate introductions for their owners",
	Long:          color.CyanString(logo) + "\nDelegate a networking agent, let it negotiate with other agents, and approve the introductions it brings back.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(verbose)
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
	}
	return err
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(relationCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(serveCmd)
}
