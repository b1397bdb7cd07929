// cmd/staticql/watch.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	staticql "github.com/staticql/staticql"
	"github.com/staticql/staticql/internal/query"
	"github.com/staticql/staticql/internal/repository"
	"github.com/staticql/staticql/internal/sync"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch source repositories and rebuild their index on a git HEAD change",
	RunE:  runWatch,
}

var (
	watchRoot     string
	watchSources  string
	watchInterval string
)

func init() {
	watchCmd.Flags().StringVar(&watchRoot, "root", ".", "Repository root directory")
	watchCmd.Flags().StringVar(&watchSources, "sources", "", "Comma-separated list of source:repo-path pairs (e.g. recipes:/repos/recipes,herbs:/repos/herbs)")
	watchCmd.Flags().StringVar(&watchInterval, "interval", "60s", "Check interval")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchSources == "" {
		return fmt.Errorf("--sources is required")
	}

	interval, err := time.ParseDuration(watchInterval)
	if err != nil {
		return fmt.Errorf("invalid interval: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	repo := repository.NewLocal(watchRoot)
	engine, err := staticql.Open(configPath, repo)
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}

	closeMetrics, err := attachMetrics(engine)
	if err != nil {
		return fmt.Errorf("attach metrics: %w", err)
	}
	defer closeMetrics()

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		resultCache, err := query.NewRedisResultCache(redisURL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer resultCache.Close()
		engine.WithResultCache(resultCache, 10*time.Minute).WithCacheInvalidation(resultCache)
	}

	var watches []sync.SourceWatch
	for _, pair := range strings.Split(watchSources, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid --sources entry %q, expected source:repo-path", pair)
		}
		watches = append(watches, sync.SourceWatch{SourceName: parts[0], RepoPath: parts[1]})
	}

	daemon := sync.NewDaemon(watches, interval, engine.Indexer, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	if err := daemon.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
