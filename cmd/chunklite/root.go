package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:     "chunklite",
	Short:   "chunklite - query remote SQLite databases over ranged HTTP",
	Long:    "chunklite fetches only the chunks a query touches, so large remote databases are queryable without downloading the whole file.",
	Version: version,
}

func init() {
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newInfoCmd())
	rootCmd.AddCommand(newFetchCmd())
	rootCmd.AddCommand(newSlowlogCmd())
	rootCmd.AddCommand(newMCPCmd())
}
