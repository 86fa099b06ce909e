// Package main provides the CLI entry point for the voxbridge webhook backend.
//
// Voxbridge answers Twilio voice calls with an AI-driven conversational
// loop and ingests inbound email, persisting both to SQLite.
//
// # Basic Usage
//
// Start the server:
//
//	voxbridge serve --config voxbridge.yaml
//
// # Environment Variables
//
// Configuration values may reference environment variables with ${VAR}
// syntax, commonly:
//
//   - TWILIO_AUTH_TOKEN: Twilio auth token for webhook signature checks
//   - OPENROUTER_API_KEY: OpenRouter API key
//   - ANTHROPIC_API_KEY: Anthropic API key for direct Anthropic access
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "voxbridge",
		Short: "AI-powered voice call and email webhook backend",
		Long: `Voxbridge bridges Twilio voice webhooks to an AI conversation loop,
speaking replies back as TwiML, and ingests inbound email with
attachments and automatic acknowledgements.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(buildServeCmd())
	rootCmd.AddCommand(buildVersionCmd())

	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("voxbridge %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
