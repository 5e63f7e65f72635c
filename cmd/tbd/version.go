package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Set by the release build via -ldflags.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the tbd version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if jsonOutput {
			fmt.Printf("{\"version\": %q}\n", version)
			return
		}
		fmt.Printf("tbd %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
