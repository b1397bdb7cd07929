// cmd/staticql/generate_docs.go
package main

import (
	"fmt"

	"github.com/staticql/staticql/internal/config"
	"github.com/staticql/staticql/internal/docgen"
	"github.com/spf13/cobra"
)

var generateDocsCmd = &cobra.Command{
	Use:   "generate-docs",
	Short: "Print a manifest of configured sources, schemas, indexes, and relations",
	RunE:  runGenerateDocs,
}

func init() {
	rootCmd.AddCommand(generateDocsCmd)
}

func runGenerateDocs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Print(docgen.Generate(cfg))
	return nil
}
