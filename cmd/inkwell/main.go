// Package main provides the CLI entry point for the inkwell content
// automation service.
//
// Start the server:
//
//	inkwell serve --config inkwell.yaml
//
// Add a workspace and list its schedules:
//
//	inkwell tenant add --name studio --bot-token $TOKEN --chat-id 12345
//	inkwell schedule list --tenant <id>
//
// # Environment Variables
//
//   - INKWELL_CONFIG: path to the configuration file (default: inkwell.yaml)
//   - INKWELL_SECRET_KEY: hex master key for tenant credential encryption
//   - ANTHROPIC_API_KEY / OPENAI_API_KEY: service-level fallback LLM keys
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:           "inkwell",
		Short:         "Multi-tenant conversational content automation",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
	}

	root.AddCommand(
		buildServeCmd(),
		buildTenantCmd(),
		buildScheduleCmd(),
		buildMigrateCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// resolveConfigPath prefers the flag, then INKWELL_CONFIG, then the
// default file in the working directory.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv("INKWELL_CONFIG"); env != "" {
		return env
	}
	return "inkwell.yaml"
}
