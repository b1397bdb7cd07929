// cmd/staticql-mcp/main.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	staticql "github.com/staticql/staticql"
	"github.com/staticql/staticql/internal/mcp"
	"github.com/staticql/staticql/internal/metrics"
	"github.com/staticql/staticql/internal/repository"
	"github.com/spf13/cobra"
)

const (
	serverName    = "staticql-mcp"
	serverVersion = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "staticql-mcp",
	Short: "MCP server exposing the staticql query engine as a tool",
	Long:  `An MCP (Model Context Protocol) server that exposes a "query" tool over an indexed set of static-content sources.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long:  `Start the MCP server listening on stdin/stdout for JSON-RPC messages.`,
	RunE:  runServe,
}

var (
	configPath string
	repoRoot   string
	logFile    string
	metricsLog string
)

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "staticql.yaml", "Path to the source config file")
	serveCmd.Flags().StringVar(&repoRoot, "root", ".", "Repository root directory")
	serveCmd.Flags().StringVar(&logFile, "log-file", "", "Log file path (defaults to ~/.cache/staticql-mcp/server.log)")
	serveCmd.Flags().StringVar(&metricsLog, "metrics-log", "", "JSONL metrics log path (disabled if unset)")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	// Logging goes to a file, never stdout: stdout is reserved for the MCP
	// JSON-RPC transport.
	logger, cleanup, err := setupLogging()
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()

	logger.Info("starting MCP server", "name", serverName, "version", serverVersion)

	repo := repository.NewLocal(repoRoot)
	engine, err := staticql.Open(configPath, repo)
	if err != nil {
		return fmt.Errorf("failed to open engine: %w", err)
	}

	handler := mcp.NewQueryHandler(engine)
	server := mcp.NewServer(serverName, serverVersion, handler, logger)

	if metricsLog != "" {
		mlog, err := metrics.NewLogger(metricsLog)
		if err != nil {
			return fmt.Errorf("failed to open metrics log: %w", err)
		}
		defer mlog.Close()
		engine.WithMetrics(mlog)
		server.WithMetrics(mlog)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := server.Run(ctx, os.Stdin, os.Stdout); err != nil {
		if err == context.Canceled {
			logger.Info("server stopped")
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

func setupLogging() (*slog.Logger, func(), error) {
	path := logFile
	if path == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			cacheDir = "/tmp"
		}
		logDir := filepath.Join(cacheDir, "staticql-mcp")
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		path = filepath.Join(logDir, "server.log")
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cleanup := func() {
		file.Close()
	}

	return logger, cleanup, nil
}
