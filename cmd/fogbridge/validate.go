package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	sdkErrors "github.com/fogbridge/fogbridge/domain/errors"
	"github.com/fogbridge/fogbridge/host"
	"github.com/fogbridge/fogbridge/log"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and the sandbox module",
	Long: `Load and validate the configuration file, then compile the sandbox
module and check it against the filter contract. Nothing is connected.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().String("module", "", "Sandbox module path (overrides sandbox.module_path)")
	validateCmd.Flags().Bool("config-only", false, "Skip the sandbox module check")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "config ok")

	if configOnly, _ := cmd.Flags().GetBool("config-only"); configOnly {
		return nil
	}

	wasm, err := os.ReadFile(cfg.Sandbox.ModulePath)
	if err != nil {
		return &sdkErrors.ModuleLoadError{Phase: "read", Err: err}
	}
	ctx := context.Background()
	h, err := host.New(ctx, host.WithLogger(log.Discard()), host.WithWASI(cfg.Sandbox.AllowWASI))
	if err != nil {
		return err
	}
	defer h.Close(ctx)

	inst, err := h.Load(ctx, wasm)
	if err != nil {
		return err
	}
	c := inst.Contract()
	fmt.Fprintf(out, "module ok: %s filter_value%s, env.log arity %d\n", host.ABIVersion, c.Signature(), c.LogArity)
	return nil
}
