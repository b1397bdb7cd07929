// cmd/staticql/generate_stubs.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var generateSchemaCmd = &cobra.Command{
	Use:   "generate-schema",
	Short: "Not implemented in core: generating JSON Schema from sample records",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("generate-schema is not implemented in core; author a JSON Schema file by hand and reference it from a source's \"schema\" field")
	},
}

var generateTypesCmd = &cobra.Command{
	Use:   "generate-types",
	Short: "Not implemented in core: generating language types from a schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("generate-types is not implemented in core; query results are generic value.Value trees with no fixed schema binding")
	},
}

func init() {
	rootCmd.AddCommand(generateSchemaCmd, generateTypesCmd)
}
