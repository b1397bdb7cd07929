// cmd/staticql/status.go
package main

import (
	"context"
	"fmt"
	"path/filepath"

	staticql "github.com/staticql/staticql"
	"github.com/staticql/staticql/internal/indexcodec"
	"github.com/staticql/staticql/internal/repository"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether each configured source has a built index",
	RunE:  runStatus,
}

var statusRoot string

func init() {
	statusCmd.Flags().StringVar(&statusRoot, "root", ".", "Repository root directory")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	repo := repository.NewLocal(statusRoot)
	engine, err := staticql.Open(configPath, repo)
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}

	ctx := context.Background()
	fmt.Println("Index status:")
	for _, src := range engine.Config.Sources() {
		dir, ok := engine.Config.IndexDir(src.Name, "slug")
		if !ok {
			fmt.Printf("  %-20s no slug index configured\n", src.Name)
			continue
		}
		present, err := repo.Exists(ctx, filepath.Join(dir, indexcodec.IndexFile))
		if err != nil {
			fmt.Printf("  %-20s error: %v\n", src.Name, err)
			continue
		}
		if present {
			fmt.Printf("  %-20s built (%d indexed fields)\n", src.Name, len(src.Indexes))
		} else {
			fmt.Printf("  %-20s not built\n", src.Name)
		}
	}
	return nil
}
