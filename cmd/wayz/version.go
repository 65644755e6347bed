package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/wayz"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of wayz",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "wayz version %s\n", strings.TrimSpace(wayz.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
