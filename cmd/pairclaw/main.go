// Package main is the entry point for the pairclaw CLI.
package main

import (
	"os"

	"github.com/KafClaw/PairClaw/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
