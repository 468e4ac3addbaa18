package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/railmind/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "railmind",
	Short: "Railway operations orchestrator",
	Long: `railmind turns free-text railway requests into a plan of tasks,
runs the tasks through capability executors in dependency order, and
replans when tasks fail.

Requests can be run once from the command line or served over HTTP,
including a WhatsApp webhook.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: user config merged with .railmind.yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(signalCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}
