package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/wayz/internal/cli"
	"github.com/aretw0/wayz/internal/config"
	"github.com/spf13/cobra"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a demo conversation",
	Long: `Runs greeting, processing and finalize for one conversation and prints the
transcript. The default policy denies every run; pass --policy allow to see a
successful conversation, or --policy remote to ask an OPA server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("checkpoint-dir") {
			cfg.Store.Backend = config.BackendFile
			cfg.Store.Dir, _ = cmd.Flags().GetString("checkpoint-dir")
		}
		if cmd.Flags().Changed("policy") {
			cfg.Policy.Mode, _ = cmd.Flags().GetString("policy")
		}
		if cmd.Flags().Changed("policy-url") {
			cfg.Policy.URL, _ = cmd.Flags().GetString("policy-url")
		}

		app, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		conversationID, _ := cmd.Flags().GetString("conversation-id")
		noBanner, _ := cmd.Flags().GetBool("no-banner")
		_, err = cli.RunDemo(ctx, app.Supervisor, newPrinter(cmd.OutOrStdout()), cli.DemoOptions{
			ConversationID: conversationID,
			PolicyMode:     cfg.Policy.Mode,
			Banner:         !noBanner,
		})
		return err
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().String("conversation-id", "demo-conversation", "Conversation ID for the demo")
	demoCmd.Flags().String("checkpoint-dir", "", "Store checkpoints as files in this directory")
	demoCmd.Flags().String("policy", config.PolicyDeny, "Policy mode: deny, allow, remote or composite")
	demoCmd.Flags().String("policy-url", "", "OPA server URL for remote policy")
	demoCmd.Flags().Bool("no-banner", false, "Do not print the banner")
}
