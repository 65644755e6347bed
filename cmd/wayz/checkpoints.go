package main

import (
	"io"
	"os"
	"time"

	"github.com/aretw0/wayz/internal/cli"
	"github.com/aretw0/wayz/internal/config"
	"github.com/spf13/cobra"
)

var checkpointsCmd = &cobra.Command{
	Use:     "checkpoints",
	Aliases: []string{"cp"},
	Short:   "Manage saved checkpoints",
	Long:    `List, inspect, roll back and remove checkpoints in the configured store.`,
}

// withApp opens the configured app for a checkpoints subcommand.
func withApp(cmd *cobra.Command, fn func(app *cli.App) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if dir, _ := cmd.Flags().GetString("checkpoint-dir"); dir != "" {
		cfg.Store.Backend = config.BackendFile
		cfg.Store.Dir = dir
	}
	app, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

var checkpointsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List checkpoints, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conversationID, _ := cmd.Flags().GetString("conversation-id")
		asJSON, _ := cmd.Flags().GetBool("json")
		return withApp(cmd, func(app *cli.App) error {
			return cli.ListCheckpoints(cmd.Context(), app.Supervisor, newPrinter(cmd.OutOrStdout()), conversationID, asJSON)
		})
	},
}

var checkpointsInspectCmd = &cobra.Command{
	Use:   "inspect <checkpoint-id>",
	Short: "Print the stored state and metadata of a checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *cli.App) error {
			return cli.InspectCheckpoint(cmd.Context(), app.Supervisor, newPrinter(cmd.OutOrStdout()), args[0])
		})
	},
}

var checkpointsRollbackCmd = &cobra.Command{
	Use:   "rollback [checkpoint-id]",
	Short: "Restore the state of a checkpoint",
	Long:  `Restores the state of a checkpoint. Without an id, pick one from a numbered list.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id string
		if len(args) == 1 {
			id = args[0]
		}
		var in io.Reader
		if isTerminal(os.Stdin) {
			in = os.Stdin
		}
		return withApp(cmd, func(app *cli.App) error {
			_, err := cli.RollbackCheckpoint(cmd.Context(), app.Supervisor, newPrinter(cmd.OutOrStdout()), in, id)
			return err
		})
	},
}

var checkpointsRmCmd = &cobra.Command{
	Use:   "rm <checkpoint-id>...",
	Short: "Remove one or more checkpoints",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *cli.App) error {
			return cli.RemoveCheckpoints(cmd.Context(), app.Supervisor, newPrinter(cmd.OutOrStdout()), args)
		})
	},
}

var checkpointsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove checkpoints older than --older-than",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		maxAge, _ := cmd.Flags().GetDuration("older-than")
		return withApp(cmd, func(app *cli.App) error {
			return cli.CleanupCheckpoints(cmd.Context(), app.Supervisor, newPrinter(cmd.OutOrStdout()), maxAge)
		})
	},
}

func init() {
	rootCmd.AddCommand(checkpointsCmd)
	checkpointsCmd.PersistentFlags().String("checkpoint-dir", "", "Read checkpoints from this directory instead of the configured store")

	checkpointsCmd.AddCommand(checkpointsListCmd)
	checkpointsListCmd.Flags().String("conversation-id", "", "Filter by conversation ID")
	checkpointsListCmd.Flags().Bool("json", false, "Print summaries as JSON")

	checkpointsCmd.AddCommand(checkpointsInspectCmd)
	checkpointsCmd.AddCommand(checkpointsRollbackCmd)
	checkpointsCmd.AddCommand(checkpointsRmCmd)

	checkpointsCmd.AddCommand(checkpointsCleanupCmd)
	checkpointsCleanupCmd.Flags().Duration("older-than", 30*24*time.Hour, "Maximum checkpoint age to keep")
}
