package main

import (
	"fmt"
	"io"
	"os"

	"github.com/aretw0/wayz"
	"github.com/aretw0/wayz/internal/cli"
	"github.com/aretw0/wayz/internal/config"
	"github.com/aretw0/wayz/internal/presentation/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var rootCmd = &cobra.Command{
	Use:   "wayz",
	Short: "wayz runs conversation workflows behind a policy gate",
	Long: `wayz supervises sequential conversation workflows. Every run is checked by a
policy enforcer, every node runs under a timeout and retry policy, and completed
runs are checkpointed so they can be listed, inspected and rolled back.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "wayz.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging on stderr")
}

// loadConfig reads --config and applies --debug.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// openApp builds the configured application.
func openApp(cfg config.Config, extra ...wayz.Option) (*cli.App, error) {
	logger, err := cli.NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	return cli.NewApp(cfg, logger, extra...)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func newPrinter(w io.Writer) *tui.Printer {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isTerminal(f)
	}
	return tui.NewPrinter(w, color)
}
