// commands.go contains the cobra command definitions. Each builder
// wires flags to a handler in handlers.go.
package main

import (
	"github.com/spf13/cobra"
)

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start sessions for every active tenant",
		Long: `Start the service: open the database, boot a chat session and
scheduler for every active tenant, and serve metrics until SIGINT or
SIGTERM.`,
		Example: `  # Start with default config
  inkwell serve

  # Start with a custom config
  inkwell serve --config /etc/inkwell/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildTenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage workspaces",
	}
	cmd.AddCommand(buildTenantAddCmd(), buildTenantListCmd())
	return cmd
}

func buildTenantAddCmd() *cobra.Command {
	var (
		configPath string
		opts       tenantAddOptions
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a workspace with the default pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTenantAdd(cmd.Context(), resolveConfigPath(configPath), opts)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&opts.Name, "name", "", "Workspace name (required)")
	cmd.Flags().StringVar(&opts.BotToken, "bot-token", "", "Telegram bot token (required)")
	cmd.Flags().StringVar(&opts.ChatID, "chat-id", "", "Telegram chat id the session is bound to (required)")
	cmd.Flags().StringVar(&opts.AnthropicKey, "anthropic-key", "", "Tenant Anthropic API key")
	cmd.Flags().StringVar(&opts.OpenAIKey, "openai-key", "", "Tenant OpenAI API key")
	cmd.Flags().StringVar(&opts.RenderKey, "render-key", "", "Image generation API key")
	cmd.Flags().StringVar(&opts.InstagramToken, "instagram-token", "", "Instagram Graph access token")
	cmd.Flags().StringVar(&opts.InstagramUser, "instagram-user", "", "Instagram business account id")
	cmd.Flags().StringVar(&opts.OwnerName, "owner", "", "Owner name for the assistant persona")
	cmd.Flags().StringVar(&opts.Niche, "niche", "", "Content niche for the assistant persona")

	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("bot-token")
	_ = cmd.MarkFlagRequired("chat-id")
	return cmd
}

func buildTenantListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTenantList(cmd.Context(), resolveConfigPath(configPath))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect schedules",
	}
	cmd.AddCommand(buildScheduleListCmd())
	return cmd
}

func buildScheduleListCmd() *cobra.Command {
	var (
		configPath string
		tenantID   string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a workspace's schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduleList(cmd.Context(), resolveConfigPath(configPath), tenantID)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Workspace id (required)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func buildMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), resolveConfigPath(configPath))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}
