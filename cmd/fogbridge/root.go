package main

import (
	"os"

	"github.com/spf13/cobra"
)

// DefaultConfigPath is used when --config is not given.
const DefaultConfigPath = "fogbridge.yaml"

var rootCmd = &cobra.Command{
	Use:   "fogbridge",
	Short: "Fog bridge for sensor telemetry",
	Long: `fogbridge - Smooth sensor telemetry at the edge.

Readings arrive over MQTT, pass through an exponential filter running in a
WebAssembly sandbox, and are republished (and optionally stored) as processed
records. The sandbox module has no capability beyond the env.log callback.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", DefaultConfigPath, "Path to the YAML configuration file")
}
