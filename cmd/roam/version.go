package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/roam"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of roam",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("roam version %s\n", roam.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
