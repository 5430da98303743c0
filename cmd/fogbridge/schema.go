package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fogbridge/fogbridge/application/schema"
)

var schemaCmd = &cobra.Command{
	Use:       "schema [record|config]",
	Short:     "Print a JSON Schema",
	Long:      `Print the JSON Schema of the published record (default) or of the configuration file.`,
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"record", "config"},
	RunE:      runSchema,
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, args []string) error {
	gen := schema.RecordSchema
	if len(args) == 1 && args[0] == "config" {
		gen = schema.ConfigSchema
	}
	raw, err := gen()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(raw))
	return err
}
