package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// commit and buildTime are set via -ldflags at build time.
var (
	commit    = "(devel)"
	buildTime = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "questionflow", commit, buildTime)
	},
}
