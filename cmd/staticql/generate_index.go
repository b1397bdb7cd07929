// cmd/staticql/generate_index.go
package main

import (
	"context"
	"fmt"

	staticql "github.com/staticql/staticql"
	"github.com/staticql/staticql/internal/indexer"
	"github.com/staticql/staticql/internal/repository"
	"github.com/spf13/cobra"
)

var generateIndexCmd = &cobra.Command{
	Use:   "generate-index [source]",
	Short: "Build the prefix-shard index for one source, or every source if omitted",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runGenerateIndex,
}

var indexRoot string

func init() {
	generateIndexCmd.Flags().StringVar(&indexRoot, "root", ".", "Repository root directory")
	rootCmd.AddCommand(generateIndexCmd)
}

func runGenerateIndex(cmd *cobra.Command, args []string) error {
	repo := repository.NewLocal(indexRoot)
	engine, err := staticql.Open(configPath, repo)
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}

	closeMetrics, err := attachMetrics(engine)
	if err != nil {
		return fmt.Errorf("attach metrics: %w", err)
	}
	defer closeMetrics()

	ctx := context.Background()

	if len(args) == 1 {
		stats, err := engine.Indexer.Build(ctx, args[0])
		if err != nil {
			return fmt.Errorf("build %s: %w", args[0], err)
		}
		printBuildStats(args[0], stats)
		return nil
	}

	allStats, err := engine.Indexer.BuildAll(ctx)
	if err != nil {
		return fmt.Errorf("build all sources: %w", err)
	}
	for name, stats := range allStats {
		printBuildStats(name, stats)
	}
	return nil
}

func printBuildStats(source string, stats *indexer.BuildStats) {
	fmt.Printf("%s: %d records indexed, %d fields written\n", source, stats.RecordsIndexed, stats.FieldsWritten)
	for _, e := range stats.Errors {
		fmt.Printf("  error: %v\n", e)
	}
}
