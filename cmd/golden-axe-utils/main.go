package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "golden-axe-utils",
	Short: "Golden Axe query service utilities",
	Long:  "Utilities for the Golden Axe query service including database migration and api key management",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
