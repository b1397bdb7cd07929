// cmd/staticql/metrics_cmd.go
package main

import (
	"fmt"
	"time"

	"github.com/staticql/staticql/internal/metrics"
	"github.com/spf13/cobra"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics [log-path]",
	Short: "Summarize a JSONL metrics log: per-source health and the most common missing-index rejections",
	Args:  cobra.ExactArgs(1),
	RunE:  runMetrics,
}

var metricsSince time.Duration

func init() {
	metricsCmd.Flags().DurationVar(&metricsSince, "since", 24*time.Hour, "Lookback window")
	rootCmd.AddCommand(metricsCmd)
}

func runMetrics(cmd *cobra.Command, args []string) error {
	analyzer := metrics.NewAnalyzer(args[0])
	summary, err := analyzer.Analyze(metricsSince)
	if err != nil {
		return fmt.Errorf("analyze %s: %w", args[0], err)
	}
	return printJSON(summary)
}
