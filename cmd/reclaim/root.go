package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "reclaim",
	Short: "Find disk space that is safe to reclaim",
	Long: `Reclaim walks a directory tree and asks a language model which
entries can be deleted, stopping once enough space has been found.

Run "reclaim serve" for the web UI or "reclaim scan <dir>" from a terminal.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(versionCmd)
}
