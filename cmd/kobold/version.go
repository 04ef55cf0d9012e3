package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kobold-io/kobold/pkg/kobold"
)

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Print kobold's version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(kobold.Version)
	},
}
