package main

import (
	"os"

	"github.com/arvo-net/arvo/cmd/arvod/commands"
)

func main() {
	rootCmd := commands.RootCmd
	rootCmd.AddCommand(
		commands.InitFilesCmd,
		commands.StartCmd,
		commands.ShowNodeIDCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
