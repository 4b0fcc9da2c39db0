package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "palace",
	Short: "Memory palace retrieval engine for agent note corpora",
	Long:  "Palace re-ranks and organizes an agent's notes: importance scoring with decay, age-based storage tiers, context tagging, and cross-granularity mirrors over an external base search.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(maintainCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(boostCmd)
	rootCmd.AddCommand(supersedeCmd)
	rootCmd.AddCommand(statusCmd)
}
