package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "nimbridge",
	Short: "OpenAI-compatible proxy for NIM inference endpoints",
	Long: `nimbridge accepts OpenAI chat completion requests and forwards them to an
NVIDIA NIM style endpoint, translating requests, responses and event streams.
Upstream reasoning can be surfaced inside <think> blocks.

Configuration is read from an optional YAML file, a .env file and the
environment, in that order of increasing precedence.`,
	Version: Version,
	// Running without a subcommand serves
	RunE: runServe,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path (optional)")
	rootCmd.SilenceUsage = true
}
