package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fogbridge/fogbridge/application/bridge"
	"github.com/fogbridge/fogbridge/application/config"
	"github.com/fogbridge/fogbridge/log"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge until interrupted",
	Long: `Load the configuration, start the sandbox, connect to the broker and
process telemetry until SIGINT or SIGTERM. Queued messages are drained
before exit.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("module", "", "Sandbox module path (overrides sandbox.module_path)")
	runCmd.Flags().String("broker", "", "Broker URL (overrides broker.url)")
	runCmd.Flags().Duration("shutdown-timeout", 10*time.Second, "Time allowed for draining on exit")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	shutdownTimeout, _ := cmd.Flags().GetDuration("shutdown-timeout")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	level, _ := log.ParseLevel(cfg.Log.Level)
	logger := log.New(log.WithLevel(level), log.WithFormat(cfg.Log.Format), log.WithWriter(cmd.ErrOrStderr()))

	b := bridge.New(*cfg, bridge.WithLogger(logger))
	if err := b.Init(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down", "timeout", shutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return b.Shutdown(shutdownCtx)
}

// loadConfig reads --config and applies the command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	changed := false
	if f := cmd.Flags().Lookup("module"); f != nil && f.Value.String() != "" {
		cfg.Sandbox.ModulePath = f.Value.String()
		changed = true
	}
	if f := cmd.Flags().Lookup("broker"); f != nil && f.Value.String() != "" {
		cfg.Broker.URL = f.Value.String()
		changed = true
	}
	if changed {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
