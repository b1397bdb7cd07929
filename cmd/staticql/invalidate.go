// cmd/staticql/invalidate.go
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	staticql "github.com/staticql/staticql"
	"github.com/staticql/staticql/internal/repository"
	"github.com/staticql/staticql/internal/query"
	"github.com/spf13/cobra"
)

var invalidateCmd = &cobra.Command{
	Use:   "invalidate [source]",
	Short: "Force-bump every indexed field's generation counter for a source, expiring its cached query pages",
	Args:  cobra.ExactArgs(1),
	RunE:  runInvalidate,
}

func init() {
	rootCmd.AddCommand(invalidateCmd)
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	source := args[0]

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return fmt.Errorf("REDIS_URL environment variable not set, nothing to invalidate")
	}

	repo := repository.NewLocal(indexRoot)
	engine, err := staticql.Open(configPath, repo)
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}

	resultCache, err := query.NewRedisResultCache(redisURL)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer resultCache.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := engine.InvalidateCache(ctx, resultCache, source); err != nil {
		return fmt.Errorf("invalidate %s: %w", source, err)
	}

	fmt.Printf("invalidated %s (every indexed field's generation bumped)\n", source)
	return nil
}
