package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of boiler-ingest",
	// Skips config, secrets, and logger setup.
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("boiler-ingest %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
