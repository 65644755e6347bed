package main

import (
	"fmt"

	"github.com/aretw0/wayz/internal/presentation/graph"
	"github.com/aretw0/wayz/pkg/nodes"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the default workflow as a Mermaid flowchart",
	Long: `Prints the default workflow as a Mermaid flowchart. With --checkpoint, the steps
the checkpointed run reached are highlighted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		g := nodes.DefaultGraph()

		var overlay *graph.Overlay
		if id, _ := cmd.Flags().GetString("checkpoint"); id != "" {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			app, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			state, ok, err := app.Supervisor.RollbackCheckpoint(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("checkpoint %s not found", id)
			}
			overlay = graph.OverlayFromState(g.Order(), state)
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(g, nil, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("checkpoint", "", "Highlight the progress stored in this checkpoint")
}
