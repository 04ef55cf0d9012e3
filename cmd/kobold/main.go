package main

import (
	"os"

	"github.com/spf13/cobra"
)

func rootMain(command *cobra.Command, _ []string) {
	command.Help()
}

var rootCommand = &cobra.Command{
	Use:   "kobold",
	Short: "kobold watches a library directory and organizes ebooks as they arrive",
	Run:   rootMain,
}

func init() {
	cobra.EnableCommandSorting = false

	rootCommand.AddCommand(
		runCommand,
		queueCommand,
		versionCommand,
	)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
